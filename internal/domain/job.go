// Package domain holds the value objects of the vehicle-tracking service:
// job descriptors, results, workflow phases and case state.
package domain

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// DefaultModelPath is the detection model used when none is supplied.
const DefaultModelPath = "yolo11n.pt"

// Output path prefixes applied by DeriveOutputPath.
const (
	StandardOutputPrefix = "tracked_"
	DemoOutputPrefix     = "demo_tracked_"
)

// Preset is a named collision-detection threshold triple.
type Preset struct {
	Name                       string
	ConfidenceThreshold        float64
	CollisionDistanceThreshold float64
	OverlapThreshold           float64
	OutputPrefix               string
}

var (
	// PresetStandard is the default detection sensitivity.
	PresetStandard = Preset{
		Name:                       "standard",
		ConfidenceThreshold:        0.4,
		CollisionDistanceThreshold: 45.0,
		OverlapThreshold:           0.12,
		OutputPrefix:               StandardOutputPrefix,
	}

	// PresetDemo is the sensitive preset used for demo footage.
	PresetDemo = Preset{
		Name:                       "demo",
		ConfidenceThreshold:        0.25,
		CollisionDistanceThreshold: 60.0,
		OverlapThreshold:           0.08,
		OutputPrefix:               DemoOutputPrefix,
	}
)

// JobDescriptor describes one video-processing request. It is built once at
// dispatch time and passed by value; workflows never modify it.
type JobDescriptor struct {
	InputPath                  string  `json:"input_path" validate:"required"`
	OutputPath                 string  `json:"output_path" validate:"required"`
	ModelPath                  string  `json:"model_path" validate:"required"`
	ConfidenceThreshold        float64 `json:"confidence_threshold" validate:"finite,gte=0,lte=1"`
	CollisionDistanceThreshold float64 `json:"collision_distance_threshold" validate:"finite,gt=0"`
	OverlapThreshold           float64 `json:"overlap_threshold" validate:"finite,gte=0,lte=1"`
	DisplayRealtime            bool    `json:"display_realtime"`
}

// JobOption customizes a JobDescriptor under construction.
type JobOption func(*JobDescriptor)

// WithOutputPath sets an explicit output path.
func WithOutputPath(path string) JobOption {
	return func(j *JobDescriptor) { j.OutputPath = path }
}

// WithModelPath overrides the detection model.
func WithModelPath(path string) JobOption {
	return func(j *JobDescriptor) {
		if path != "" {
			j.ModelPath = path
		}
	}
}

// WithThresholds overrides all three detection thresholds.
func WithThresholds(confidence, collisionDistance, overlap float64) JobOption {
	return func(j *JobDescriptor) {
		j.ConfidenceThreshold = confidence
		j.CollisionDistanceThreshold = collisionDistance
		j.OverlapThreshold = overlap
	}
}

// WithDisplayRealtime sets the realtime display hint.
func WithDisplayRealtime(display bool) JobOption {
	return func(j *JobDescriptor) { j.DisplayRealtime = display }
}

// NewJobDescriptor builds a validated descriptor using the standard preset.
func NewJobDescriptor(inputPath string, opts ...JobOption) (JobDescriptor, error) {
	return newFromPreset(PresetStandard, inputPath, opts)
}

// NewStandardModeRequest builds a descriptor with the standard preset.
func NewStandardModeRequest(inputPath string, opts ...JobOption) (JobDescriptor, error) {
	return newFromPreset(PresetStandard, inputPath, opts)
}

// NewDemoModeRequest builds a descriptor with the sensitive demo preset.
func NewDemoModeRequest(inputPath string, opts ...JobOption) (JobDescriptor, error) {
	return newFromPreset(PresetDemo, inputPath, opts)
}

func newFromPreset(p Preset, inputPath string, opts []JobOption) (JobDescriptor, error) {
	j := JobDescriptor{
		InputPath:                  strings.TrimSpace(inputPath),
		ModelPath:                  DefaultModelPath,
		ConfidenceThreshold:        p.ConfidenceThreshold,
		CollisionDistanceThreshold: p.CollisionDistanceThreshold,
		OverlapThreshold:           p.OverlapThreshold,
	}
	for _, opt := range opts {
		opt(&j)
	}
	if j.OutputPath == "" && j.InputPath != "" {
		j.OutputPath = DeriveOutputPath(j.InputPath, p.OutputPrefix)
	}
	if err := j.Validate(); err != nil {
		return JobDescriptor{}, err
	}
	return j, nil
}

// DeriveOutputPath places prefix+basename next to the input file.
func DeriveOutputPath(inputPath, prefix string) string {
	dir, base := filepath.Split(inputPath)
	return dir + prefix + base
}

// Validate checks required fields and threshold ranges. The returned error
// wraps one ValidationError per failing field.
func (j JobDescriptor) Validate() error {
	err := jobValidator().Struct(j)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, NewValidationError(fe.Field(), describeFieldError(fe)))
	}
	return errors.Join(errs...)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func jobValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		})
		validate = v
	})
	return validate
}
