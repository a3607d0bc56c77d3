package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"testing"

	"pressing/internal/services"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
		},
		Format: Format{
			Duration: "123.45",
			BitRate:  "32000",
		},
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio", Duration: "61.5"}}}
	if result.DurationSeconds() != 61.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func useHelper(t *testing.T, mode string) *[]string {
	t.Helper()
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFPROBE_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestProberDuration(t *testing.T) {
	captured := useHelper(t, "audio")
	d, err := Prober{Binary: "/opt/ffprobe"}.Duration(context.Background(), "/music/01 song.mp3")
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if d != 187.32 {
		t.Fatalf("unexpected duration %v", d)
	}
	args := *captured
	if args[0] != "/opt/ffprobe" || args[len(args)-1] != "/music/01 song.mp3" || args[len(args)-2] != "--" {
		t.Fatalf("unexpected command %v", args)
	}
}

func TestProberRejectsFilesWithoutAudio(t *testing.T) {
	useHelper(t, "silent")
	_, err := Prober{}.Duration(context.Background(), "cover.jpg")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProberReportsToolFailure(t *testing.T) {
	useHelper(t, "fail")
	_, err := Prober{}.Duration(context.Background(), "broken.mp3")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFPROBE_HELPER_MODE") {
	case "audio":
		fmt.Println(`{"streams":[{"index":0,"codec_name":"mp3","codec_type":"audio","sample_rate":"44100","channels":2}],"format":{"filename":"x","nb_streams":1,"duration":"187.320000","format_name":"mp3"}}`)
	case "silent":
		fmt.Println(`{"streams":[{"index":0,"codec_name":"mjpeg","codec_type":"video"}],"format":{"duration":"0.04"}}`)
	case "fail":
		fmt.Fprintln(os.Stderr, "broken.mp3: Invalid data found when processing input")
		os.Exit(1)
	}
	os.Exit(0)
}
