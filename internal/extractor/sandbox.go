// Package extractor isolates invocation of the external extractor image
// inside a sandbox (spec §4.3). The extractor binary itself is an opaque
// program: this package only knows how to hand it a PDF and collect a
// text file back.
package extractor

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
)

// mountTarget is where the sandbox container sees the shared volume,
// regardless of what path it has on the host (spec §4.3 step 1).
const mountTarget = "/pdfs"

// Sandbox launches a versioned extractor image against a PDF and reads
// back the plain-text file it produces.
type Sandbox struct {
	Client     *docker.Client
	Image      string
	WorkDir    string
	MountDir   string
	log        *logging.Logger
}

// New returns a Sandbox that launches image against PDFs copied into
// workDir. mountDir is bind-mounted into the container at /pdfs; workDir
// and mountDir are two aliases for the same underlying volume (spec §4.3).
func New(client *docker.Client, image, workDir, mountDir string, log *logging.Logger) *Sandbox {
	return &Sandbox{Client: client, Image: image, WorkDir: workDir, MountDir: mountDir, log: log}
}

// DoExtraction copies pdfPath into the sandbox's work directory, runs the
// extractor image against it, and returns the resulting UTF-8 text. Every
// exit path — success, container-error, or no-content — cleans up the PDF,
// the text file, and any intermediate .pdf2txt file, per spec §4.3 step 5.
func (s *Sandbox) DoExtraction(ctx context.Context, pdfPath string) (string, error) {
	stub := uuid.NewString()
	workPDF := filepath.Join(s.WorkDir, stub+".pdf")
	workTxt := filepath.Join(s.WorkDir, stub+".txt")
	workIntermediate := filepath.Join(s.WorkDir, stub+".pdf2txt")

	defer func() {
		os.Remove(workPDF)
		os.Remove(workTxt)
		os.Remove(workIntermediate)
	}()

	if err := copyFile(pdfPath, workPDF); err != nil {
		return "", domain.WrapError(domain.ErrContainerError, "copying PDF into sandbox work directory", err)
	}

	mountPDF := filepath.Join(mountTarget, stub+".pdf")
	if err := s.runContainer(ctx, mountPDF); err != nil {
		return "", domain.WrapError(domain.ErrContainerError, "running extractor container", err)
	}

	info, err := os.Stat(workTxt)
	if err != nil || info.Size() == 0 {
		return "", domain.NewError(domain.ErrNoContent, "extractor produced no output for "+pdfPath)
	}

	text, err := os.ReadFile(workTxt)
	if err != nil {
		return "", domain.WrapError(domain.ErrNoContent, "reading extractor output", err)
	}
	return string(text), nil
}

// runContainer creates, starts, waits for, and removes a single
// short-lived container running s.Image against mountPDF.
func (s *Sandbox) runContainer(ctx context.Context, mountPDF string) error {
	containerConfig := &container.Config{
		Image: s.Image,
		Cmd:   []string{mountPDF},
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: s.MountDir,
				Target: mountTarget,
			},
		},
		AutoRemove: true,
	}

	created, err := s.Client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return err
	}

	if err := s.Client.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return err
	}

	statusCh, errCh := s.Client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-statusCh:
	}
	return nil
}

// IsAvailable is the cheap, non-destructive probe spec §4.3 calls for: a
// Docker Engine API Info call reports whether the sandbox runtime is
// reachable at all, without starting anything.
func (s *Sandbox) IsAvailable(ctx context.Context) bool {
	_, err := s.Client.Info(ctx)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
