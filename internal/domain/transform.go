package domain

// TransformRequest is what the runner hands to a codec adapter.
type TransformRequest struct {
	InputPath    string
	OutputPath   string
	Ext          string // lower-cased input extension, dot included
	Action       Action
	TargetFormat string
	CompMode     string
	CompValue    string
	Params       Params
}

func NewTransformRequest(j *Job, outputPath string) TransformRequest {
	return TransformRequest{
		InputPath:    j.InputPath,
		OutputPath:   outputPath,
		Ext:          Ext(j.OriginalFilename),
		Action:       j.Action,
		TargetFormat: j.TargetFormat,
		CompMode:     j.CompMode,
		CompValue:    j.CompValue,
		Params:       j.Params,
	}
}
