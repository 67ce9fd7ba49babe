package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ModelType identifies the on-device model that produced a session's
// predictions.
type ModelType int

const (
	InceptionV3 ModelType = iota
	GoogLeNetPlaces
	MobileNet
	VGG16
	AgeNet
	Food101
	TinyYOLO
	CarRecognition
	Fruits
)

var AllModels = []ModelType{
	InceptionV3, GoogLeNetPlaces, MobileNet, VGG16, AgeNet, Food101, TinyYOLO, CarRecognition, Fruits,
}

// Capability is what a frame source needs to know to feed a model.
type Capability struct {
	Name      string `json:"name"`
	InputSize int    `json:"input_size"`
}

func (m ModelType) Capability() Capability {
	switch m {
	case InceptionV3:
		return Capability{Name: "inception_v3", InputSize: 299}
	case GoogLeNetPlaces:
		return Capability{Name: "googlenet_places", InputSize: 224}
	case MobileNet:
		return Capability{Name: "mobilenet", InputSize: 224}
	case VGG16:
		return Capability{Name: "vgg16", InputSize: 224}
	case AgeNet:
		return Capability{Name: "agenet", InputSize: 227}
	case Food101:
		return Capability{Name: "food101", InputSize: 299}
	case TinyYOLO:
		return Capability{Name: "tiny_yolo", InputSize: 416}
	case CarRecognition:
		return Capability{Name: "car_recognition", InputSize: 224}
	case Fruits:
		return Capability{Name: "fruits", InputSize: 100}
	default:
		return Capability{Name: "unknown"}
	}
}

func (m ModelType) String() string {
	return m.Capability().Name
}

func (m ModelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *ModelType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseModelType(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func ParseModelType(s string) (ModelType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, m := range AllModels {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown model type: %q", s)
}
