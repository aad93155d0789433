package terminal

import "testing"

func TestCaptureLifecycle(t *testing.T) {
	c := NewCapture(0)

	c.Append("ignored")
	if c.Active() || c.Text() != "" {
		t.Fatal("inactive capture recorded data")
	}

	c.Start()
	c.Append("hello ")
	c.Append("")
	c.Append("world")
	if got := c.Text(); got != "hello world" {
		t.Errorf("Text = %q", got)
	}

	if got := c.Stop(); got != "hello world" {
		t.Errorf("Stop = %q", got)
	}
	if c.Active() || c.Text() != "" {
		t.Error("Stop did not reset the capture")
	}
}

func TestCaptureRestartClears(t *testing.T) {
	c := NewCapture(0)
	c.Start()
	c.Append("old")
	c.Start()
	if got := c.Text(); got != "" {
		t.Errorf("restart kept %q", got)
	}
}

func TestCaptureLimit(t *testing.T) {
	c := NewCapture(8)
	c.Start()
	c.Append("12345")
	c.Append("6789") // would exceed 8 bytes
	c.Append("678")
	if got := c.Text(); got != "12345678" {
		t.Errorf("Text = %q", got)
	}
}
