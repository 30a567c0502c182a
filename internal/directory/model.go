package directory

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/NeilR2s/cold-start-marketplace/internal/shared"
)

// Verification field values are stored as strings so the external
// representation of existing documents keeps round-tripping unchanged.
const (
	defaultRole              = "user"
	defaultIsVerified        = "false"
	defaultVerificationLevel = "1"
	defaultTrustScore        = "60"
)

type VerificationData struct {
	IsVerified        string `bson:"isVerified" json:"isVerified"`
	VerificationLevel string `bson:"verification_level" json:"verification_level"`
	TrustScore        string `bson:"trust_score" json:"trust_score"`
}

// User is the full document stored in the users collection. The client
// generated identifier doubles as the document key and the partition field.
type User struct {
	ID               string           `bson:"_id" json:"id"`
	UserID           string           `bson:"userId" json:"userId"`
	Email            string           `bson:"email" json:"email"`
	DisplayName      string           `bson:"displayName" json:"displayName"`
	Role             string           `bson:"role" json:"role"`
	AvatarURL        string           `bson:"avatarUrl" json:"avatarUrl"`
	VerificationData VerificationData `bson:"verificationData" json:"verificationData"`
	TwistData        map[string]any   `bson:"twistData" json:"twistData"`
}

// Projection is the reduced shape returned by Search. Email and verification
// data are deliberately excluded.
type Projection struct {
	ID          string         `bson:"_id" json:"id"`
	DisplayName string         `bson:"displayName" json:"displayName"`
	AvatarURL   string         `bson:"avatarUrl" json:"avatarUrl"`
	Role        string         `bson:"role" json:"role"`
	TwistData   map[string]any `bson:"twistData" json:"twistData"`
}

type CreateParams struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	AvatarURL   string
}

func newUser(params CreateParams) User {
	role := strings.TrimSpace(params.Role)
	if role == "" {
		role = defaultRole
	}
	return User{
		ID:          params.ID,
		UserID:      params.ID,
		Email:       params.Email,
		DisplayName: params.DisplayName,
		Role:        role,
		AvatarURL:   params.AvatarURL,
		VerificationData: VerificationData{
			IsVerified:        defaultIsVerified,
			VerificationLevel: defaultVerificationLevel,
			TrustScore:        defaultTrustScore,
		},
		TwistData: map[string]any{},
	}
}

// GeneralUpdate carries the optional top-level profile fields. Empty strings
// mean "leave unchanged".
type GeneralUpdate struct {
	DisplayName string
	AvatarURL   string
}

func (u GeneralUpdate) setDocument() bson.M {
	set := bson.M{}
	if strings.TrimSpace(u.DisplayName) != "" {
		set["displayName"] = u.DisplayName
	}
	if strings.TrimSpace(u.AvatarURL) != "" {
		set["avatarUrl"] = u.AvatarURL
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func verificationSet(isVerified bool, trustScore *int) bson.M {
	set := bson.M{"verificationData.isVerified": strconv.FormatBool(isVerified)}
	if trustScore != nil {
		set["verificationData.trust_score"] = strconv.Itoa(*trustScore)
	}
	return set
}

func twistSet(updates map[string]any) (bson.M, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: twist update requires at least one entry", shared.ErrValidation)
	}
	set := bson.M{}
	for key, value := range updates {
		if err := validateTwistKey(key); err != nil {
			return nil, err
		}
		set["twistData."+key] = value
	}
	return set, nil
}

func validateTwistKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: twist key must not be empty", shared.ErrValidation)
	}
	if strings.Contains(key, ".") || strings.HasPrefix(key, "$") {
		return fmt.Errorf("%w: twist key %q contains reserved characters", shared.ErrValidation, key)
	}
	return nil
}
