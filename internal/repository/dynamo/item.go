package dynamo

import (
	"fmt"
	"strconv"
	"time"

	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"geofyle/internal/model"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func numberInt(v int64) *dbtypes.AttributeValueMemberN {
	return &dbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func numberFloat(v float64) *dbtypes.AttributeValueMemberN {
	return &dbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func marshalFile(f *model.FileRecord) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"id":          &dbtypes.AttributeValueMemberS{Value: f.ID},
		"name":        &dbtypes.AttributeValueMemberS{Value: f.Name},
		"description": &dbtypes.AttributeValueMemberS{Value: f.Description},
		"size":        numberInt(f.Size),
		"mimeType":    &dbtypes.AttributeValueMemberS{Value: f.MimeType},
		"location": &dbtypes.AttributeValueMemberM{Value: map[string]dbtypes.AttributeValue{
			"latitude":  numberFloat(f.Location.Latitude),
			"longitude": numberFloat(f.Location.Longitude),
		}},
		"spatialKey":     &dbtypes.AttributeValueMemberS{Value: f.SpatialKey},
		"uploadTime":     &dbtypes.AttributeValueMemberS{Value: formatTime(f.UploadTime)},
		"expirationTime": &dbtypes.AttributeValueMemberS{Value: formatTime(f.ExpirationTime)},
		"ttl":            numberInt(f.TTL),
		"downloadCount":  numberInt(f.DownloadCount),
	}
}

func unmarshalFile(item map[string]dbtypes.AttributeValue) (*model.FileRecord, error) {
	var (
		f   model.FileRecord
		err error
	)
	if f.ID, err = stringAttr(item, "id"); err != nil {
		return nil, err
	}
	if f.Name, err = stringAttr(item, "name"); err != nil {
		return nil, err
	}
	if f.Description, err = stringAttr(item, "description"); err != nil {
		return nil, err
	}
	if f.MimeType, err = stringAttr(item, "mimeType"); err != nil {
		return nil, err
	}
	if f.SpatialKey, err = stringAttr(item, "spatialKey"); err != nil {
		return nil, err
	}
	if f.Size, err = intAttr(item, "size"); err != nil {
		return nil, err
	}
	if f.TTL, err = intAttr(item, "ttl"); err != nil {
		return nil, err
	}
	if f.DownloadCount, err = intAttr(item, "downloadCount"); err != nil {
		return nil, err
	}
	if f.UploadTime, err = timeAttr(item, "uploadTime"); err != nil {
		return nil, err
	}
	if f.ExpirationTime, err = timeAttr(item, "expirationTime"); err != nil {
		return nil, err
	}

	loc, ok := item["location"].(*dbtypes.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("dynamo: attribute %q missing or not a map", "location")
	}
	if f.Location.Latitude, err = floatAttr(loc.Value, "latitude"); err != nil {
		return nil, err
	}
	if f.Location.Longitude, err = floatAttr(loc.Value, "longitude"); err != nil {
		return nil, err
	}
	return &f, nil
}

func stringAttr(item map[string]dbtypes.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*dbtypes.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamo: attribute %q missing or not a string", name)
	}
	return v.Value, nil
}

func intAttr(item map[string]dbtypes.AttributeValue, name string) (int64, error) {
	v, ok := item[name].(*dbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamo: attribute %q missing or not a number", name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: attribute %q: %w", name, err)
	}
	return n, nil
}

func floatAttr(item map[string]dbtypes.AttributeValue, name string) (float64, error) {
	v, ok := item[name].(*dbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamo: attribute %q missing or not a number", name)
	}
	n, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: attribute %q: %w", name, err)
	}
	return n, nil
}

func timeAttr(item map[string]dbtypes.AttributeValue, name string) (time.Time, error) {
	s, err := stringAttr(item, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("dynamo: attribute %q: %w", name, err)
	}
	return t.UTC(), nil
}
