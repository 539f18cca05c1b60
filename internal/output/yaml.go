package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tyuio302/idx-vps/internal/vm"
)

// YAMLFormatter formats VMs as YAML.
type YAMLFormatter struct{}

// FormatVM formats the full view of a single VM as YAML.
func (f *YAMLFormatter) FormatVM(d *vm.Detail) (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVMList formats a list of VMs as YAML.
func (f *YAMLFormatter) FormatVMList(infos []vm.Info) (string, error) {
	if len(infos) == 0 {
		return "", nil
	}
	data, err := yaml.Marshal(infos)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM list to YAML: %w", err)
	}
	return string(data), nil
}
