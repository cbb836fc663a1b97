package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput implements InstrumentOutput by writing every http exchange
// into its own file under a directory.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears and recreates `dir`.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}
