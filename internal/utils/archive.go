package utils

import (
	"fmt"
	"os"
	"os/exec"
)

// CompressTarGz packs the contents of srcFolder into tarGzFile.
func CompressTarGz(srcFolder, tarGzFile string) error {
	cmd := exec.Command("tar", "-czf", tarGzFile, "-C", srcFolder, ".")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to create tar.gz file: %w", err)
	}
	return nil
}

func UnpackTarGz(tarGzFile string, dstFolder string) error {
	cmd := exec.Command("tar", "-xzf", tarGzFile, "-C", dstFolder)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to unpack tar.gz file: %w", err)
	}
	return nil
}
