package sysinfo

import "runtime"

// Debian architecture names for the Go architectures they differ from
var debianArches = map[string]string{
	"386":      "i386",
	"arm":      "armhf",
	"ppc64le":  "ppc64el",
	"mipsle":   "mipsel",
	"mips64le": "mips64el",
}

// LocalArch returns the architecture of the running host in Debian naming
func LocalArch() string {
	return DebianArch(runtime.GOARCH)
}

// DebianArch converts a Go architecture name to its Debian equivalent
func DebianArch(goarch string) string {
	if arch, ok := debianArches[goarch]; ok {
		return arch
	}
	return goarch
}
