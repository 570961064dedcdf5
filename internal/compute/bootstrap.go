package compute

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkspacePath is the fixed working directory on every provisioned VM.
// The bootstrap script creates it; Execute runs all commands inside it.
const WorkspacePath = "/workspace"

// ReadyMarkerPath is written by the bootstrap script once the toolchain is
// installed. Remote sessions can probe it to confirm bootstrap completion.
const ReadyMarkerPath = "/var/run/bootstrap-ready"

// cloudConfig is the cloud-init user-data document baked into every VM.
type cloudConfig struct {
	PackageUpdate bool     `yaml:"package_update"`
	Packages      []string `yaml:"packages"`
	RunCmd        []string `yaml:"runcmd"`
}

// BootstrapUserData renders the fixed cloud-init document that installs the
// remote session toolchain: git, the Docker engine, and the Bun runtime, plus
// the workspace directory and readiness marker.
func BootstrapUserData() (string, error) {
	cfg := cloudConfig{
		PackageUpdate: true,
		Packages:      []string{"git", "docker.io", "curl", "unzip"},
		RunCmd: []string{
			"systemctl enable --now docker",
			"curl -fsSL https://bun.sh/install | bash",
			"ln -sf /root/.bun/bin/bun /usr/local/bin/bun",
			fmt.Sprintf("mkdir -p %s", WorkspacePath),
			fmt.Sprintf("touch %s", ReadyMarkerPath),
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render cloud-config: %w", err)
	}
	return "#cloud-config\n" + string(data), nil
}
