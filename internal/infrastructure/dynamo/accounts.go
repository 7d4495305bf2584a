package dynamo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/drs-api/internal/domain"
)

// Prefixes of the uniqueness claims stored in the account keys table.
const (
	keyPrefixEmail = "email#"
	keyPrefixPhone = "phone#"
)

// AccountRepo stores one account kind in its own table.
// Admins and doctors each get an instance pointed at their table. Both share
// the keys table, where every email and doctor phone is claimed by exactly one
// account in the same transaction that writes the account.
type AccountRepo struct {
	client    *dynamodb.Client
	tableName string
	keysTable string
	kind      domain.AccountKind
	hasPhone  bool
}

func NewAccountRepo(client *dynamodb.Client, tableName, keysTable string, kind domain.AccountKind) *AccountRepo {
	return &AccountRepo{
		client:    client,
		tableName: tableName,
		keysTable: keysTable,
		kind:      kind,
		hasPhone:  kind == domain.KindDoctor,
	}
}

func (r *AccountRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldAccountID, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.Internal("get account", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, domain.Internal("unmarshal account", err)
	}
	return &a, nil
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, indexEmail, fieldEmail, email)
}

// FindByPhone looks up a doctor by phone. Tables without a phone index never match.
func (r *AccountRepo) FindByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	if !r.hasPhone {
		return nil, fmt.Errorf("account with phone: %w", domain.ErrNotFound)
	}
	return r.queryGSI(ctx, indexPhone, fieldPhone, phone)
}

// Save writes a. A zero Version creates the record; otherwise the write only
// succeeds if the stored version still equals a.Version. Email and phone
// claims move with the account in one transaction, so a taken email or phone
// and a lost race are both reported as domain.ErrConflict. a.Version is
// advanced on success.
func (r *AccountRepo) Save(ctx context.Context, a *domain.Account) error {
	if a.Version == 0 {
		return r.create(ctx, a)
	}

	prev, err := r.FindByID(ctx, a.AccountID)
	if err != nil {
		return err
	}
	if prev.Version != a.Version {
		return fmt.Errorf("update account: concurrent modification: %w", domain.ErrConflict)
	}

	next := a.Version + 1
	updates := accountUpdates(a)
	updates[fieldVersion] = next
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return domain.Internal("build account update", err)
	}
	ue.Names["#ver"] = fieldVersion
	ue.Values[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprint(a.Version)}

	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey(fieldAccountID, a.AccountID),
			UpdateExpression:          aws.String(ue.Expr),
			ConditionExpression:       aws.String("#ver = :expected"),
			ExpressionAttributeNames:  ue.Names,
			ExpressionAttributeValues: ue.Values,
		},
	}}
	items = append(items, r.keyWrites(prev, a)...)

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return mapWriteErr("update account", err)
	}
	a.Version = next
	return nil
}

func (r *AccountRepo) create(ctx context.Context, a *domain.Account) error {
	stored := *a
	stored.Version = 1
	item, err := attributevalue.MarshalMap(&stored)
	if err != nil {
		return domain.Internal("marshal account", err)
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(r.tableName),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#id)"),
			ExpressionAttributeNames: map[string]string{"#id": fieldAccountID},
		},
	}}
	items = append(items, r.keyWrites(nil, a)...)

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return mapWriteErr("put account", err)
	}
	a.Version = 1
	return nil
}

// uniqueKeys lists the claims a holds in the keys table.
func (r *AccountRepo) uniqueKeys(a *domain.Account) []string {
	if a == nil {
		return nil
	}
	keys := []string{keyPrefixEmail + a.Email}
	if r.hasPhone && a.Phone != nil && *a.Phone != "" {
		keys = append(keys, keyPrefixPhone+*a.Phone)
	}
	return keys
}

// keyWrites claims the keys next holds that prev did not, and releases the
// ones it gave up. A claim fails when another account owns the key.
func (r *AccountRepo) keyWrites(prev, next *domain.Account) []types.TransactWriteItem {
	prevKeys, nextKeys := r.uniqueKeys(prev), r.uniqueKeys(next)
	names := map[string]string{"#k": fieldUniqueKey, "#owner": fieldOwnerID}
	owned := func() map[string]types.AttributeValue {
		return map[string]types.AttributeValue{":owner": &types.AttributeValueMemberS{Value: next.AccountID}}
	}
	const cond = "attribute_not_exists(#k) OR #owner = :owner"

	var items []types.TransactWriteItem
	for _, k := range nextKeys {
		if slices.Contains(prevKeys, k) {
			continue
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.keysTable),
			Item: map[string]types.AttributeValue{
				fieldUniqueKey: &types.AttributeValueMemberS{Value: k},
				fieldOwnerID:   &types.AttributeValueMemberS{Value: next.AccountID},
				fieldKind:      &types.AttributeValueMemberS{Value: string(r.kind)},
			},
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: owned(),
		}})
	}
	for _, k := range prevKeys {
		if slices.Contains(nextKeys, k) {
			continue
		}
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(r.keysTable),
			Key:                       strKey(fieldUniqueKey, k),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: owned(),
		}})
	}
	return items
}

// accountUpdates lists the mutable attributes of a. Optional attributes that
// are unset map to nil so the update removes them and sparse indexes stay clean.
func accountUpdates(a *domain.Account) map[string]interface{} {
	u := map[string]interface{}{
		fieldName:         a.Name,
		fieldEmail:        a.Email,
		fieldPasswordHash: a.PasswordHash,
		fieldOTP:          a.OTP,
		fieldOTPExpiresAt: a.OTPExpiresAt,
		fieldIsActive:     a.IsActive,
		fieldIsVerified:   a.IsVerified,
		fieldUpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fieldPhone:        nil,
		fieldPages:        nil,
		fieldPendingEmail: nil,
	}
	if a.Phone != nil && *a.Phone != "" {
		u[fieldPhone] = *a.Phone
	}
	if len(a.Pages) > 0 {
		u[fieldPages] = []byte(a.Pages)
	}
	if a.PendingEmail != "" {
		u[fieldPendingEmail] = a.PendingEmail
	}
	return u
}

func mapWriteErr(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s: concurrent modification: %w", op, domain.ErrConflict)
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return fmt.Errorf("%s: email, phone or version already taken: %w", op, domain.ErrConflict)
			}
		}
	}
	return domain.Internal(op, err)
}

func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, domain.Internal("query account by "+attr, err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("account with %s: %w", attr, domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, domain.Internal("unmarshal account", err)
	}
	return &a, nil
}

// ScanPage returns a page of accounts matching f.
// cursor is a base64-encoded account_id used as ExclusiveStartKey.
// Returns the items, a next cursor (empty string when no more pages), and any error.
func (r *AccountRepo) ScanPage(ctx context.Context, limit int32, cursor string, f domain.AccountFilter) ([]domain.Account, string, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Limit:     aws.Int32(limit),
	}
	if expr, names, values := scanFilter(f); expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	if cursor != "" {
		accountID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		input.ExclusiveStartKey = strKey(fieldAccountID, accountID)
	}
	out, err := r.client.Scan(ctx, input)
	if err != nil {
		return nil, "", domain.Internal("scan accounts", err)
	}
	var accounts []domain.Account
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &accounts); err != nil {
		return nil, "", domain.Internal("unmarshal accounts", err)
	}
	nextCursor := ""
	if v, ok := out.LastEvaluatedKey[fieldAccountID].(*types.AttributeValueMemberS); ok {
		nextCursor = encodeCursor(v.Value)
	}
	return accounts, nextCursor, nil
}

func scanFilter(f domain.AccountFilter) (string, map[string]string, map[string]types.AttributeValue) {
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if f.IsActive != nil {
		conds = append(conds, "#active = :active")
		names["#active"] = fieldIsActive
		values[":active"] = &types.AttributeValueMemberBOOL{Value: *f.IsActive}
	}
	if f.IsVerified != nil {
		conds = append(conds, "#verified = :verified")
		names["#verified"] = fieldIsVerified
		values[":verified"] = &types.AttributeValueMemberBOOL{Value: *f.IsVerified}
	}
	if f.Search != "" {
		conds = append(conds, "(contains(#name, :q) OR contains(#email, :qlower))")
		names["#name"] = fieldName
		names["#email"] = fieldEmail
		values[":q"] = &types.AttributeValueMemberS{Value: f.Search}
		values[":qlower"] = &types.AttributeValueMemberS{Value: strings.ToLower(f.Search)}
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return strings.Join(conds, " AND "), names, values
}

func encodeCursor(accountID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(accountID))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
