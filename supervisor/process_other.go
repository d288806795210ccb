//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func configureProcess(*exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
