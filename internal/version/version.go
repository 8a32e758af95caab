package version

// Version is overridden at build time via -ldflags "-X github.com/bnema/walletsync/internal/version.Version=...".
var Version = "dev"
