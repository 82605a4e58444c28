//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func configure(*exec.Cmd) {}

func terminate(p *os.Process) error {
	return p.Kill()
}
