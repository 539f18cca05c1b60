// Package catalog is the static OS image table consumed by the
// provisioning flow when a new profile is created. It is read-only: the
// entries carry the download URL and the image's stock login defaults.
package catalog

import "sort"

// Image describes one base OS image.
type Image struct {
	// Label is the display name operators select by.
	Label string
	// Family and Variant tag the OS (e.g. ubuntu / 24.04).
	Family  string
	Variant string
	// URL is the cloud image download location.
	URL string
	// DefaultHostname, DefaultUsername and DefaultPassword seed the
	// profile fields when the operator does not override them.
	DefaultHostname string
	DefaultUsername string
	DefaultPassword string
}

var images = map[string]Image{
	"ubuntu-24.04": {
		Label:           "ubuntu-24.04",
		Family:          "ubuntu",
		Variant:         "24.04",
		URL:             "https://cloud-images.ubuntu.com/noble/current/noble-server-cloudimg-amd64.img",
		DefaultHostname: "ubuntu",
		DefaultUsername: "ubuntu",
		DefaultPassword: "ubuntu",
	},
	"ubuntu-22.04": {
		Label:           "ubuntu-22.04",
		Family:          "ubuntu",
		Variant:         "22.04",
		URL:             "https://cloud-images.ubuntu.com/jammy/current/jammy-server-cloudimg-amd64.img",
		DefaultHostname: "ubuntu",
		DefaultUsername: "ubuntu",
		DefaultPassword: "ubuntu",
	},
	"debian-12": {
		Label:           "debian-12",
		Family:          "debian",
		Variant:         "12",
		URL:             "https://cloud.debian.org/images/cloud/bookworm/latest/debian-12-genericcloud-amd64.qcow2",
		DefaultHostname: "debian",
		DefaultUsername: "debian",
		DefaultPassword: "debian",
	},
	"fedora-42": {
		Label:           "fedora-42",
		Family:          "fedora",
		Variant:         "42",
		URL:             "https://download.fedoraproject.org/pub/fedora/linux/releases/42/Cloud/x86_64/images/Fedora-Cloud-Base-Generic-42-1.1.x86_64.qcow2",
		DefaultHostname: "fedora",
		DefaultUsername: "fedora",
		DefaultPassword: "fedora",
	},
	"alma-9": {
		Label:           "alma-9",
		Family:          "almalinux",
		Variant:         "9",
		URL:             "https://repo.almalinux.org/almalinux/9/cloud/x86_64/images/AlmaLinux-9-GenericCloud-latest.x86_64.qcow2",
		DefaultHostname: "alma",
		DefaultUsername: "almalinux",
		DefaultPassword: "almalinux",
	},
}

// Lookup returns the image for a label.
func Lookup(label string) (Image, bool) {
	img, ok := images[label]
	return img, ok
}

// Images returns all catalog entries ordered by label.
func Images() []Image {
	labels := make([]string, 0, len(images))
	for l := range images {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	out := make([]Image, 0, len(labels))
	for _, l := range labels {
		out = append(out, images[l])
	}
	return out
}
