package domain

import "time"

// GenerationState is the ledger state of a queued prompt
type GenerationState string

const (
	StateReadyToSubmit GenerationState = "ReadyToSubmit"
	StateSubmitted     GenerationState = "Submitted"
	StateCompleted     GenerationState = "Completed"
	StateFailed        GenerationState = "Failed"
	StateCancelled     GenerationState = "Cancelled"
)

// Generation represents a prompt tracked in the ledger and its job progress
type Generation struct {
	ID          int
	RequestID   string
	Prompt      string
	JobID       string
	State       GenerationState
	OutputPaths []string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GenerationParams represents the worker input schema
type GenerationParams struct {
	Prompt               string
	NegativePrompt       string
	Width                int
	Height               int
	NumInferenceSteps    int
	GuidanceScale        float64
	NumImages            int
	Seed                 *int64
	HFToken              string
	CustomLoraRepo       string
	CustomLoraWeightName string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSRegion            string
	S3Bucket             string
	S3Prefix             string
}

// Input renders the params as a JobInput, omitting unset fields so the
// worker applies its own defaults.
func (p GenerationParams) Input() JobInput {
	in := JobInput{"prompt": p.Prompt}
	setString := func(key, v string) {
		if v != "" {
			in[key] = v
		}
	}
	setInt := func(key string, v int) {
		if v != 0 {
			in[key] = v
		}
	}

	setString("negative_prompt", p.NegativePrompt)
	setInt("width", p.Width)
	setInt("height", p.Height)
	setInt("num_inference_steps", p.NumInferenceSteps)
	if p.GuidanceScale != 0 {
		in["guidance_scale"] = p.GuidanceScale
	}
	setInt("num_images", p.NumImages)
	if p.Seed != nil {
		in["seed"] = *p.Seed
	}
	setString("hf_token", p.HFToken)
	setString("custom_lora_repo", p.CustomLoraRepo)
	setString("custom_lora_weight_name", p.CustomLoraWeightName)

	// S3 upload only happens worker-side when the full credential set is present
	if p.AWSAccessKeyID != "" && p.AWSSecretAccessKey != "" && p.S3Bucket != "" {
		in["aws_access_key_id"] = p.AWSAccessKeyID
		in["aws_secret_access_key"] = p.AWSSecretAccessKey
		in["s3_bucket"] = p.S3Bucket
		setString("aws_region", p.AWSRegion)
		setString("s3_prefix", p.S3Prefix)
	}
	return in
}
