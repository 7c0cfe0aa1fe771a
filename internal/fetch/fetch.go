// Package fetch pulls the published extract archive over HTTP, with
// optional mutual TLS when the source requires a client certificate.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// TLSConfig carries the PEM file locations for mutual-TLS downloads.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Downloader fetches archives from one fixed source URL into a working
// directory.
type Downloader struct {
	sourceURL string
	http      *http.Client
	logger    *slog.Logger
}

// NewDownloader builds a downloader. A nil tlsCfg means plain HTTPS.
func NewDownloader(sourceURL string, tlsCfg *TLSConfig, logger *slog.Logger) (*Downloader, error) {
	client := &http.Client{Timeout: 5 * time.Minute}
	if tlsCfg != nil {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client key pair: %w", err)
		}
		caPEM, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("loading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", tlsCfg.CAFile)
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				RootCAs:      pool,
			},
		}
	}
	return &Downloader{sourceURL: sourceURL, http: client, logger: logger}, nil
}

// Download fetches the archive into dir and returns its path. Returns ""
// when the source has nothing new: a 404/410 response, or an archive whose
// name is already present on disk.
func (d *Downloader) Download(ctx context.Context, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		d.logger.InfoContext(ctx, "no archive published", "status", resp.StatusCode)
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("archive download returned status %d", resp.StatusCode)
	}

	name := archiveName(resp)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		d.logger.InfoContext(ctx, "archive already on disk, skipping download", "file", name)
		return "", nil
	}

	out, err := os.CreateTemp(dir, name+".part-*")
	if err != nil {
		return "", err
	}
	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("writing archive %s: %w", name, err)
	}
	if err := os.Rename(out.Name(), dest); err != nil {
		os.Remove(out.Name())
		return "", err
	}

	d.logger.InfoContext(ctx, "archive downloaded", "file", name, "bytes", written)
	return dest, nil
}

// archiveName resolves the local file name from the Content-Disposition
// header, falling back to the last URL path segment.
func archiveName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" {
				return name
			}
		}
	}
	if name := path.Base(resp.Request.URL.Path); strings.HasSuffix(name, ".zip") {
		return name
	}
	return "extract.zip"
}

// Regenerator asks the extract service to rebuild its published extract.
type Regenerator struct {
	serviceURL string
	http       *http.Client
	logger     *slog.Logger
}

func NewRegenerator(serviceURL string, logger *slog.Logger) *Regenerator {
	return &Regenerator{
		serviceURL: serviceURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// TriggerGeneration fires the rebuild request. The call is fire-and-forget:
// any 2xx acknowledgement is success.
func (r *Regenerator) TriggerGeneration(ctx context.Context) error {
	target, err := url.JoinPath(r.serviceURL, "generate-extract")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extract generation returned status %d", resp.StatusCode)
	}
	r.logger.InfoContext(ctx, "extract generation triggered", "status", resp.StatusCode)
	return nil
}
