package repository

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PageKey is the store-native continuation key for a paginated query. Both
// item kinds in the conversations table key on user_id + sk.
type PageKey struct {
	UserID string `json:"user_id"`
	SK     string `json:"sk"`
}

// EncodePageToken serializes a continuation key into an opaque token.
// A nil key yields an empty token.
func EncodePageToken(key *PageKey) string {
	if key == nil {
		return ""
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodePageToken parses an opaque token back into a continuation key.
// Absent or malformed tokens yield nil, restarting pagination from the
// beginning rather than failing.
func DecodePageToken(token string) *PageKey {
	if token == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var key PageKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil
	}
	if key.UserID == "" || key.SK == "" {
		return nil
	}
	return &key
}

func (k *PageKey) attributeKey() map[string]types.AttributeValue {
	if k == nil {
		return nil
	}
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: k.UserID},
		"sk":      &types.AttributeValueMemberS{Value: k.SK},
	}
}

func pageKeyFromAttributes(attrs map[string]types.AttributeValue) *PageKey {
	if len(attrs) == 0 {
		return nil
	}
	return &PageKey{
		UserID: strAttr(attrs, "user_id"),
		SK:     strAttr(attrs, "sk"),
	}
}
