package version

// Name is the binary name reported by the version command.
const Name = "gasflow"

var (
	// Version is the semantic version of the binary. Overridden at build time via -ldflags.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent returns the User-Agent header value used for outbound requests.
func UserAgent() string {
	return Name + "/" + Version
}
