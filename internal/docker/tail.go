package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/model"
)

// ContainerLogPath returns the on-disk json-file log driver path for a
// container, following Docker's own layout convention.
func ContainerLogPath(dockerRoot, containerID string) string {
	return filepath.Join(dockerRoot, "containers", containerID, containerID+"-json.log")
}

// DefaultDockerRoot is Docker's default data-root, used when the pipeline
// isn't told otherwise.
const DefaultDockerRoot = "/var/lib/docker"

// Line is one decoded envelope plus the container it came from, handed to
// the parser stage (§4.C) by the TailReader.
type Line struct {
	Container model.ContainerDescriptor
	Envelope  *Envelope
}

// TailReader follows one container's json-file log on disk, decoding each
// line into an Envelope and forwarding it on Lines. It always starts at the
// end of the file: the pipeline's job is to ship new activity, not to
// replay a container's history on every forwarder restart.
type TailReader struct {
	container model.ContainerDescriptor
	path      string
	logger    *logrus.Logger

	tailer *tail.Tail
	Lines  chan Line
	errc   chan error

	wg sync.WaitGroup
}

// NewTailReader starts following a container's log file. The returned
// reader's Lines channel is closed once Stop is called or the underlying
// file tail ends unrecoverably.
func NewTailReader(container model.ContainerDescriptor, dockerRoot string, logger *logrus.Logger) (*TailReader, error) {
	path := ContainerLogPath(dockerRoot, container.ContainerID)

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Poll:     false,
	})
	if err != nil {
		return nil, fmt.Errorf("tail container log %s: %w", path, err)
	}

	r := &TailReader{
		container: container,
		path:      path,
		logger:    logger,
		tailer:    t,
		Lines:     make(chan Line, 256),
		errc:      make(chan error, 1),
	}

	r.wg.Add(1)
	return r, nil
}

// Run drives the tail loop until ctx is cancelled or Stop is called. It
// decodes each raw line into an Envelope; lines that fail to decode are
// logged and dropped rather than propagated, matching the decoder's
// contract that a single malformed line must never halt the stream.
func (r *TailReader) Run(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.Lines)
	defer r.tailer.Cleanup()

	for {
		select {
		case <-ctx.Done():
			if err := r.tailer.Stop(); err != nil {
				r.logger.WithError(err).Warn("error stopping container tailer")
			}
			return

		case line, ok := <-r.tailer.Lines:
			if !ok {
				if err := r.tailer.Err(); err != nil {
					r.logger.WithError(err).WithField("path", r.path).Warn("tailer ended with error")
				}
				return
			}
			if line.Err != nil {
				r.logger.WithError(line.Err).WithField("path", r.path).Warn("tail line error")
				continue
			}

			env, err := DecodeEnvelope([]byte(line.Text))
			if err != nil {
				r.logger.WithError(err).WithField("container_id", r.container.ContainerID).Debug("dropping malformed envelope line")
				continue
			}

			select {
			case <-ctx.Done():
				return
			case r.Lines <- Line{Container: r.container, Envelope: env}:
			}
		}
	}
}

// Stop terminates the tail and waits for Run to exit.
func (r *TailReader) Stop() error {
	err := r.tailer.Stop()
	r.wg.Wait()
	return err
}
