package sandbox

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBinaryVersion is the nearcore release downloaded when no
	// near-sandbox binary is found locally.
	DefaultBinaryVersion = "2.4.0"

	// BinaryPathEnvVar overrides binary resolution entirely when set.
	BinaryPathEnvVar = "NEAR_SANDBOX_BIN"

	binaryName      = "near-sandbox"
	downloadBaseURL = "https://s3-us-west-1.amazonaws.com/build.nearprotocol.com/nearcore"
)

// ResolveBinary locates a near-sandbox binary, in order of preference: the
// NEAR_SANDBOX_BIN environment variable, a binary on PATH, and finally a
// cached download of the given release under ~/.near-harness/bin. An empty
// version selects DefaultBinaryVersion.
func ResolveBinary(version string) (string, error) {
	if path := os.Getenv(BinaryPathEnvVar); path != "" {
		return path, nil
	}

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	if version == "" {
		version = DefaultBinaryVersion
	}
	if _, err := semver.NewVersion(version); err != nil {
		return "", fmt.Errorf("invalid sandbox version %q: %w", version, err)
	}

	return downloadBinary(version)
}

// downloadBinary fetches and unpacks the release tarball for the current
// platform, caching the result per version. Partial downloads never reach
// the cache path.
func downloadBinary(version string) (string, error) {
	platform, err := platformID()
	if err != nil {
		return "", err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}

	binDir := filepath.Join(home, ".near-harness", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create binary cache: %w", err)
	}

	binPath := filepath.Join(binDir, fmt.Sprintf("%s-%s", binaryName, version))
	if _, err := os.Stat(binPath); err == nil {
		return binPath, nil
	}

	url := fmt.Sprintf("%s/%s/%s/%s.tar.gz", downloadBaseURL, platform, version, binaryName)

	resp, err := resty.New().R().SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download sandbox binary: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to download sandbox binary: unexpected status %s for %s", resp.Status(), url)
	}

	tmpPath := binPath + ".partial"
	if err := extractBinary(body, tmpPath); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("failed to extract sandbox binary: %w", err)
	}

	if err := os.Rename(tmpPath, binPath); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("failed to install sandbox binary: %w", err)
	}

	return binPath, nil
}

// extractBinary streams the tarball and writes the near-sandbox entry to
// dst with execute permissions.
func extractBinary(r io.Reader, dst string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no %s entry in archive", binaryName)
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Base(hdr.Name) != binaryName {
			continue
		}

		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // trusted release archive
			out.Close()

			return err
		}

		return out.Close()
	}
}

// platformID maps the runtime platform onto the release artifact naming
// scheme.
func platformID() (string, error) {
	var sys string
	switch runtime.GOOS {
	case "linux", "darwin":
		sys = runtime.GOOS
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "arm64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	return sys + "-" + arch, nil
}
