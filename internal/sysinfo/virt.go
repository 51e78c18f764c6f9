package sysinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Nested KVM switches of the hypervisor modules
var nestedParams = []string{
	"sys/module/kvm_intel/parameters/nested",
	"sys/module/kvm_amd/parameters/nested",
}

// HasVirtualization reports whether a KVM accelerated VM can be started on
// the host below root (usually "/"). Inside a VM this only holds when the
// hypervisor exposes nested virtualization.
func HasVirtualization(root string) bool {
	for _, param := range nestedParams {
		data, err := os.ReadFile(filepath.Join(root, param))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case "Y", "y", "1":
			logrus.Debugf("Nested virtualization enabled (%s)", param)
			return true
		default:
			logrus.Debugf("Nested virtualization disabled (%s)", param)
			return false
		}
	}

	return cpuHasVirtFlags(filepath.Join(root, "proc", "cpuinfo"))
}

func cpuHasVirtFlags(cpuinfo string) bool {
	f, err := os.Open(cpuinfo)
	if err != nil {
		logrus.Debugf("Cannot read %s: %v", cpuinfo, err)
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found || strings.TrimSpace(key) != "flags" {
			continue
		}
		for _, flag := range strings.Fields(value) {
			if flag == "vmx" || flag == "svm" {
				return true
			}
		}
	}
	return false
}
