package core

// Fields is the key/value structure handed to the notify and build processes.
// The keys are consumed by downstream participants and must not change.
type Fields map[string]any

const (
	FieldMsg       = "msg"
	FieldPayload   = "payload"
	FieldRepoURL   = "repourl"
	FieldBranch    = "branch"
	FieldRevision  = "revision"
	FieldProject   = "project"
	FieldPackage   = "package"
	FieldEv        = "ev"
	FieldNamespace = "namespace"
	FieldToken     = "token"
	FieldDebian    = "debian"
	FieldDumb      = "dumb"
)
