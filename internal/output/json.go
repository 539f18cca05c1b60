package output

import (
	"encoding/json"
	"fmt"

	"github.com/tyuio302/idx-vps/internal/vm"
)

// JSONFormatter formats VMs as JSON.
type JSONFormatter struct{}

// FormatVM formats the full view of a single VM as JSON.
func (f *JSONFormatter) FormatVM(d *vm.Detail) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatVMList formats a list of VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(infos []vm.Info) (string, error) {
	if len(infos) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM list to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
