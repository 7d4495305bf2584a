package dynamo

// DynamoDB attribute names used in keys, indexes and update expressions.
// They must match the dynamodbav tags on the domain types.
const (
	fieldAccountID    = "account_id"
	fieldEmail        = "email"
	fieldPhone        = "phone"
	fieldName         = "name"
	fieldPasswordHash = "password_hash"
	fieldOTP          = "otp"
	fieldOTPExpiresAt = "otp_expires_at"
	fieldIsActive     = "is_active"
	fieldIsVerified   = "is_verified"
	fieldPages        = "pages"
	fieldVersion      = "version"
	fieldUpdatedAt    = "updated_at"
	fieldPendingEmail = "pending_email"

	fieldUniqueKey = "unique_key"
	fieldOwnerID   = "owner_id"
	fieldKind      = "kind"

	fieldMessageID = "message_id"
	fieldBucket    = "bucket"
)
