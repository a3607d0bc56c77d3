package encoding

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pressing/internal/pipeline"
	"pressing/internal/services"
	"pressing/internal/targets"
	"pressing/internal/testsupport"
)

func newSource(t *testing.T, name string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, name)
	testsupport.WriteFile(t, src, 64)
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0o755); err != nil {
		t.Fatal(err)
	}
	return src, out
}

func TestEncoderCommands(t *testing.T) {
	tests := []struct {
		target targets.Target
		ext    string
		want   func(src, partial string) []string
	}{
		{
			target: targets.MP3,
			ext:    "mp3",
			want: func(src, partial string) []string {
				return []string{"lame", "--quiet", "-V", "0", "-q", "0", "-m", "j", "--nohist", src, partial}
			},
		},
		{
			target: targets.Preview,
			ext:    "mp3",
			want: func(src, partial string) []string {
				return []string{"lame", "--quiet", "-b", "32", "-V", "5", "-q", "5", "-m", "j", "--nohist", src, partial}
			},
		},
		{
			target: targets.Ogg,
			ext:    "ogg",
			want: func(src, partial string) []string {
				return []string{"oggenc", "-Q", src, "-o", partial}
			},
		},
		{
			target: targets.FLAC,
			ext:    "flac",
			want: func(src, partial string) []string {
				return []string{"flac", "-s", src, "-f", "-o", partial}
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			calls := useHelper(t, "encode")
			src, outDir := newSource(t, "01 song.wav")
			out := filepath.Join(outDir, "01 Song."+tt.ext)

			enc := NewEncoder(testsupport.NewConfig(t), nil)
			if err := enc.Encode(context.Background(), pipeline.EncodeRequest{Target: tt.target, Source: src, Output: out}); err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}

			got := calls.all()
			if len(got) != 1 {
				t.Fatalf("expected one invocation, got %v", got)
			}
			if want := tt.want(src, PartialPath(out)); !reflect.DeepEqual(got[0], want) {
				t.Fatalf("command = %v, want %v", got[0], want)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("output missing: %v", err)
			}
			if len(data) == 0 {
				t.Fatal("output is empty")
			}
			if _, err := os.Stat(PartialPath(out)); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("partial file left behind: %v", err)
			}
		})
	}
}

func TestEncoderSkipsFreshOutput(t *testing.T) {
	src, outDir := newSource(t, "01 song.wav")
	out := filepath.Join(outDir, "01 Song.mp3")
	if err := os.WriteFile(out, []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(out, future, future); err != nil {
		t.Fatal(err)
	}

	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		t.Fatalf("encoder ran for a fresh output: %s %v", name, args)
		return nil
	}
	t.Cleanup(func() { commandContext = original })

	enc := NewEncoder(testsupport.NewConfig(t), nil)
	if err := enc.Encode(context.Background(), pipeline.EncodeRequest{Target: targets.MP3, Source: src, Output: out}); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
}

func TestEncoderFailureLeavesNoOutput(t *testing.T) {
	useHelper(t, "fail")
	src, outDir := newSource(t, "01 song.wav")
	out := filepath.Join(outDir, "01 Song.mp3")

	enc := NewEncoder(testsupport.NewConfig(t), nil)
	err := enc.Encode(context.Background(), pipeline.EncodeRequest{Target: targets.MP3, Source: src, Output: out})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Fatalf("failed encode left files: %v", entries)
	}
}

func TestEncoderCancellationTerminatesTool(t *testing.T) {
	useHelper(t, "hang")
	src, outDir := newSource(t, "01 song.wav")
	out := filepath.Join(outDir, "01 Song.ogg")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	enc := NewEncoder(testsupport.NewConfig(t), nil)
	start := time.Now()
	err := enc.Encode(ctx, pipeline.EncodeRequest{Target: targets.Ogg, Source: src, Output: out})
	if !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("encoder was not terminated promptly")
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Fatalf("cancelled encode left files: %v", entries)
	}
}

func TestEncoderDecodesFLACSourceForLame(t *testing.T) {
	calls := useHelper(t, "encode")
	src, outDir := newSource(t, "01 song.flac")
	out := filepath.Join(outDir, "01 Song.mp3")

	enc := NewEncoder(testsupport.NewConfig(t), nil)
	if err := enc.Encode(context.Background(), pipeline.EncodeRequest{Target: targets.MP3, Source: src, Output: out}); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	got := calls.all()
	if len(got) != 2 {
		t.Fatalf("expected decoder and encoder, got %v", got)
	}
	if !reflect.DeepEqual(got[0], []string{"flac", "-d", "-c", "-s", src}) {
		t.Fatalf("unexpected decoder %v", got[0])
	}
	if got[1][0] != "lame" || got[1][len(got[1])-2] != "-" {
		t.Fatalf("lame should read stdin, got %v", got[1])
	}
}

func TestPartialPathKeepsExtension(t *testing.T) {
	if got := PartialPath("/out/mp3/01 Song.mp3"); got != "/out/mp3/.01 Song.partial.mp3" {
		t.Fatalf("unexpected partial path %q", got)
	}
}

func TestCommandErrorClassification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := CommandError(ctx, "lame", errors.New("signal: terminated"), ""); !services.IsCancellation(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if err := CommandError(context.Background(), "lame", exec.ErrNotFound, ""); !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("expected tool unavailable, got %v", err)
	}
	err := CommandError(context.Background(), "lame", errors.New("exit status 1"), "a\nb\nc\nd\ne\nf\ng")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if want := "c | d | e | f | g"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected stderr tail %q in %q", want, err.Error())
	}
}
