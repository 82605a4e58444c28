//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configure starts the tool as the leader of its own process group.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate kills the whole process group, so helpers the tool spawned
// (yt-dlp running ffmpeg, say) do not outlive the job.
func terminate(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return p.Kill()
}
