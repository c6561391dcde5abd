package metrics

/*
Labels and so on for metrics used in the deployer.
*/

const (
	Namespace = "deployer"

	LabelSuccess = "success"
	LabelOutcome = "outcome"
	LabelStage   = "stage"
	LabelCommand = "command"
)
