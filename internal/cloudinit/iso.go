package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"

	"github.com/tyuio302/idx-vps/internal/profile"
)

// GenerateISO creates the NoCloud seed ISO for a profile. The image
// contains user-data and meta-data in the root directory under the
// "CIDATA" volume label required by the NoCloud datasource.
func GenerateISO(p *profile.Profile) ([]byte, error) {
	userData, metaData, err := Documents(p)
	if err != nil {
		return nil, err
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		// Temp-file cleanup; the ISO bytes are already captured.
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(userData)), "user-data"); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(metaData)), "meta-data"); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}

	var buf bytes.Buffer
	// Volume label must be uppercase CIDATA per the NoCloud spec.
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}

// Documents renders the seed documents without packing them into an ISO.
// The provisioner hashes these to decide whether an existing seed volume
// is already current.
func Documents(p *profile.Profile) (userData, metaData string, err error) {
	if p == nil {
		return "", "", fmt.Errorf("profile cannot be nil")
	}

	userData, err = GenerateUserData(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate user-data: %w", err)
	}
	metaData, err = GenerateMetaData(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate meta-data: %w", err)
	}
	return userData, metaData, nil
}
