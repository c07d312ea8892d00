package version

// Version is overridden at release time with
// -ldflags "-X github.com/glauth/iamldap/internal/version.Version=vX.Y.Z"
var Version = "v0.1.0-dev"
