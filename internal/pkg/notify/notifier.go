package notify

import (
	"context"
	log "log/slog"
	"os/exec"
	"time"
)

// Notifier 设备级提醒入口
type Notifier interface {
	Push(ctx context.Context, title, body string) error
}

// DesktopNotifier 通过外部命令（默认 notify-send）弹出桌面提醒
type DesktopNotifier struct {
	command string
}

func NewDesktopNotifier(command string) *DesktopNotifier {
	if command == "" {
		command = "notify-send"
	}
	return &DesktopNotifier{command: command}
}

func (s *DesktopNotifier) Push(ctx context.Context, title, body string) error {
	runCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.command, title, body)
	if err := cmd.Run(); err != nil {
		return err
	}
	return nil
}

// LogNotifier 提醒关闭时的替身，仅落日志
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (s *LogNotifier) Push(_ context.Context, title, body string) error {
	log.Info("本地提醒（静默模式）", "title", title, "body", body)
	return nil
}
