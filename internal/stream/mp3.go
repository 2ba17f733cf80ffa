package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"

	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/audio"
)

// ServeMP3 streams the session's rendered program as chunked MP3 over HTTP,
// a fallback for clients without WebRTC. Each connection spawns an ffmpeg
// process encoding PCM from stdin to MP3 on stdout.
func ServeMP3(logger *zap.Logger, b *Broadcaster, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Warn("mp3 stream stdin pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Warn("mp3 stream stdout pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("mp3 stream ffmpeg start", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	listener := b.Subscribe()
	defer b.Unsubscribe(listener)

	logger.Info("mp3 listener connected", zap.Int("listeners", b.ListenerCount()))
	defer logger.Info("mp3 listener disconnected")

	// Feed PCM frames into ffmpeg.
	go func() {
		defer stdin.Close()
		bufs := audio.AcquireFrameBuffers()
		defer audio.ReleaseFrameBuffers(bufs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if len(frame)*2 > cap(bufs.BytesBuf) {
					bufs.BytesBuf = make([]byte, len(frame)*2)
				}
				pcm := audio.Int16ToBytesInto(frame, bufs.BytesBuf[:len(frame)*2])
				if _, err := stdin.Write(pcm); err != nil {
					return
				}
			}
		}
	}()

	// Relay MP3 bytes to the client.
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.Warn("mp3 stream read", zap.Error(err))
			}
			break
		}
	}

	cmd.Wait()
}
