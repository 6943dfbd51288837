// Package persister writes entities to the storage client and maps backend
// failures to domain errors.
package persister

import (
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/odm"
)

// Extractor reads entity properties for the required-property check.
type Extractor interface {
	// Extract returns the value of property and whether this view holds
	// it. Properties a view does not hold are not checked.
	Extract(property string) (value any, present bool, err error)
}

// GetterExtractor reads the current state of a file.
type GetterExtractor struct {
	File *entity.File
}

func (e GetterExtractor) Extract(property string) (any, bool, error) {
	switch property {
	case entity.PropertyBucket:
		return e.File.BucketName(), true, nil
	case entity.PropertyID:
		return e.File.ID(), true, nil
	case entity.PropertyBin:
		v, err := e.File.Bin()
		return v, true, err
	case entity.PropertyMetadata:
		v, err := e.File.AllMetadata()
		return v, true, err
	case entity.FilenameKey:
		v, err := e.File.Filename()
		return v, true, err
	default:
		return nil, false, odm.InvalidArgument("file has no property %q", property)
	}
}

// ChangeSetExtractor reads the latest values of a change set.
type ChangeSetExtractor struct {
	Changes entity.ChangeSet
}

func (e ChangeSetExtractor) Extract(property string) (any, bool, error) {
	c, ok := e.Changes.Get(property)
	if !ok {
		return nil, false, nil
	}
	return c.New, true, nil
}

// CheckRequired returns a MissingRequiredProperty error for the first
// property in required that ex holds with an empty value.
func CheckRequired(ex Extractor, required []string) error {
	for _, prop := range required {
		v, present, err := ex.Extract(prop)
		if err != nil {
			return err
		}
		if present && isEmpty(v) {
			return odm.MissingRequiredProperty(prop)
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case map[string]string:
		return len(x) == 0
	case *entity.Bucket:
		return x == nil || x.Name() == ""
	default:
		return false
	}
}
