package metrics

/*
Labels and so on for metrics used in compose-sync.
*/

const (
	Namespace = "compose_sync"

	LabelSuccess = "success"
	LabelStatus  = "status"
	LabelOutcome = "outcome"
)
