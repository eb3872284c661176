package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		StatusInQueue:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s: IsTerminal=%v want %v", s, got, want)
		}
		if !s.Known() {
			t.Errorf("%s: expected known status", s)
		}
	}
	if JobStatus("TIMED_OUT").Known() {
		t.Fatalf("unexpected known status")
	}
}

func TestGenerationParamsInput(t *testing.T) {
	seed := int64(42)
	in := GenerationParams{
		Prompt:   "portrait",
		Width:    512,
		Seed:     &seed,
		S3Bucket: "bucket",
	}.Input()

	if in["prompt"] != "portrait" || in["width"] != 512 || in["seed"] != int64(42) {
		t.Fatalf("unexpected input: %v", in)
	}
	for _, key := range []string{"height", "negative_prompt", "hf_token", "s3_bucket"} {
		if _, ok := in[key]; ok {
			t.Errorf("unset or incomplete key %q forwarded", key)
		}
	}

	withS3 := GenerationParams{
		Prompt:             "p",
		AWSAccessKeyID:     "id",
		AWSSecretAccessKey: "secret",
		S3Bucket:           "bucket",
		AWSRegion:          "eu-west-1",
	}.Input()
	if withS3["s3_bucket"] != "bucket" || withS3["aws_region"] != "eu-west-1" {
		t.Fatalf("S3 settings missing: %v", withS3)
	}
}

func TestTransportErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&TransportError{Op: "check status", Err: cause})
	if !errors.Is(err, ErrGenerationFailed) || !errors.Is(err, cause) {
		t.Fatalf("error chain broken: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "check status: generation failed") {
		t.Fatalf("unexpected message: %s", err)
	}

	notFound := &TransportError{Op: "check status", StatusCode: 404, Body: "missing"}
	if !IsNotFound(notFound) {
		t.Fatalf("expected not found")
	}
	if !strings.Contains(notFound.Error(), "404") || !strings.Contains(notFound.Error(), "missing") {
		t.Fatalf("unexpected message: %s", notFound)
	}
}
