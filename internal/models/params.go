package models

// CommonParams are the options shared by every kiwi invocation
type CommonParams struct {
	// Description is the path of the appliance description directory
	Description string
	// DescriptionFile is the description file in Description. When empty
	// the engine looks it up.
	DescriptionFile string
	Profile         string
	Debug           bool
}

// PrepareParams configures a "system prepare" run
type PrepareParams struct {
	CommonParams

	// Root is the directory of the output sysroot
	Root              string
	AllowExistingRoot bool
}

// BuildParams configures a "system build" or "system boxbuild" run
type BuildParams struct {
	CommonParams

	TargetDir string
	Clean     bool

	// Box settings
	BoxMemory string
	CPU       string
	Cross     bool
	Local     bool
	NoAccel   bool
}
