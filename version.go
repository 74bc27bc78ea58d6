package agentui

// Version is set at build time with -ldflags "-X github.com/a-h/agentui.Version=...".
var Version = "dev"
