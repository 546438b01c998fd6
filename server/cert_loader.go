package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// certCheckInterval bounds how often GetCertificate stats the files on disk.
const certCheckInterval = time.Minute

// CertLoader serves the listener's TLS certificate and picks up renewed
// files without a restart. At most once per certCheckInterval a request
// triggers a mod-time check; when either file changed since the last load,
// the pair is loaded again. A failed reload keeps the old certificate.
type CertLoader struct {
	certPath string
	keyPath  string
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *tls.Certificate
	loadTime  time.Time
	checkedAt time.Time
}

// NewCertLoader loads the key pair and returns a loader whose GetCertificate
// method plugs into tls.Config.
func NewCertLoader(certPath, keyPath string, logger *slog.Logger) (*CertLoader, error) {
	l := &CertLoader{certPath: certPath, keyPath: keyPath, logger: logger}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// GetCertificate implements the tls.Config.GetCertificate callback.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if time.Since(l.checkedAt) < certCheckInterval {
		defer l.mu.RUnlock()
		return l.current, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.checkedAt) < certCheckInterval {
		return l.current, nil
	}
	l.checkedAt = time.Now()

	if l.changedOnDisk() {
		if err := l.load(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.current, nil
}

// changedOnDisk reports whether either file was modified after the last
// load. Stat errors count as unchanged.
func (l *CertLoader) changedOnDisk() bool {
	for _, path := range []string{l.certPath, l.keyPath} {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn("failed to stat certificate file", "path", path, "error", err)
			return false
		}
		if info.ModTime().After(l.loadTime) {
			return true
		}
	}
	return false
}

func (l *CertLoader) load() error {
	pair, err := tls.LoadX509KeyPair(l.certPath, l.keyPath)
	if err != nil {
		return fmt.Errorf("load tls key pair: %w", err)
	}
	l.current = &pair
	l.loadTime = time.Now()
	l.logger.Info("tls certificate loaded", "cert_file", l.certPath, "key_file", l.keyPath)
	return nil
}
