package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/cella_backend/utils"
	"gorm.io/gorm"
)

type OperatorKind string

const (
	OperatorService   OperatorKind = "service"
	OperatorAnonymous OperatorKind = "anonymous"
	OperatorUser      OperatorKind = "user"
)

// Operator is the audit-attribution identity. Exactly one row exists for the
// service principal, one for the anonymous principal, and one per user; all
// three variants are enforced by the (kind, user_id) unique index, with
// user_id fixed at 0 for the singletons.
type Operator struct {
	ID        int          `gorm:"primary_key" json:"id"`
	Kind      OperatorKind `gorm:"size:16;not null;uniqueIndex:idx_operator_identity" json:"kind"`
	UserId    int          `gorm:"not null;default:0;uniqueIndex:idx_operator_identity" json:"user_id"`
	Name      string       `gorm:"size:150" json:"name"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

type PrincipalKind int

const (
	PrincipalSystem PrincipalKind = iota
	PrincipalAnonymous
	PrincipalUser
	PrincipalOperator
)

// Principal is a tagged union identifying the acting party of a mutation.
type Principal struct {
	Kind       PrincipalKind
	UserId     int
	UserName   string
	OperatorId int
}

func SystemPrincipal() Principal {
	return Principal{Kind: PrincipalSystem}
}

func AnonymousPrincipal() Principal {
	return Principal{Kind: PrincipalAnonymous}
}

func UserPrincipal(userId int, userName string) Principal {
	return Principal{Kind: PrincipalUser, UserId: userId, UserName: userName}
}

func OperatorPrincipal(operatorId int) Principal {
	return Principal{Kind: PrincipalOperator, OperatorId: operatorId}
}

// PrincipalFromContext derives the acting principal from request context.
// Absent user info means a system-originated action.
func PrincipalFromContext(ctx context.Context) Principal {
	if utils.GetAnonymousFromContext(ctx) {
		return AnonymousPrincipal()
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		userName, _ := utils.GetUserNameFromContext(ctx)
		return UserPrincipal(userId, userName)
	}
	return SystemPrincipal()
}

// ResolveOperator get-or-creates the Operator row for a principal inside the
// caller's transaction. Every variant is backed by the (kind, user_id)
// unique index, so a lost create race hits a duplicate-key error and
// refetches the winner's row; repeated calls always return the same row.
func ResolveOperator(tx *gorm.DB, principal Principal) (*Operator, error) {
	switch principal.Kind {
	case PrincipalOperator:
		var op Operator
		if err := tx.First(&op, principal.OperatorId).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return &op, nil
	case PrincipalUser:
		return getOrCreateOperator(tx,
			tx.Session(&gorm.Session{}).Where("kind = ? AND user_id = ?", OperatorUser, principal.UserId),
			&Operator{Kind: OperatorUser, UserId: principal.UserId, Name: principal.UserName})
	case PrincipalAnonymous:
		return getOrCreateOperator(tx,
			tx.Session(&gorm.Session{}).Where("kind = ?", OperatorAnonymous),
			&Operator{Kind: OperatorAnonymous, Name: "anonymous"})
	default:
		return getOrCreateOperator(tx,
			tx.Session(&gorm.Session{}).Where("kind = ?", OperatorService),
			&Operator{Kind: OperatorService, Name: "service"})
	}
}

func getOrCreateOperator(tx *gorm.DB, query *gorm.DB, fresh *Operator) (*Operator, error) {
	var op Operator
	err := query.First(&op).Error
	if err == nil {
		return &op, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err := tx.Create(fresh).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			// lost the race; the winner's row is what we want
			if err := query.First(&op).Error; err != nil {
				return nil, err
			}
			return &op, nil
		}
		return nil, err
	}
	return fresh, nil
}
