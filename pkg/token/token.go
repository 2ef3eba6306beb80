// Package token はJWTアクセストークンの発行と検証を提供する。
//
// 検証は構文→署名→発行者/対象→有効期限→失効リスト→サブジェクトの順で行い、
// 最初に失敗した段階の種別エラーを返す。失敗種別はゲートウェイが
// X-Auth-Reasonヘッダーとして呼び出し元へ伝える。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nao1215/kawase/pkg/revocation"
)

// 検証失敗の種別。呼び出し側はerrors.Isで分岐する。
var (
	// ErrMalformed はトークンがJWTとして構文的に不正であることを表す。
	ErrMalformed = errors.New("トークンの形式が不正")
	// ErrBadSignature は署名検証に失敗したことを表す。
	ErrBadSignature = errors.New("トークンの署名が不正")
	// ErrWrongIssuer は発行者または対象が設定値と一致しないことを表す。
	ErrWrongIssuer = errors.New("トークンの発行者または対象が不正")
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限切れ")
	// ErrRevoked はトークンがログアウト等により失効済みであることを表す。
	ErrRevoked = errors.New("トークンは失効済み")
	// ErrMalformedClaims は署名は正しいがクレームの内容が不正（サブジェクトが
	// UUIDでない等）であることを表す。
	ErrMalformedClaims = errors.New("トークンのクレームが不正")
)

// ReasonMissingToken はAuthorizationヘッダー欠如を表す理由文字列。
// 検証エラー以前の失敗のため、Reasonとは別に定義する。
const ReasonMissingToken = "missing_token"

// Reason は検証エラーをX-Auth-Reasonヘッダー用の機械可読な文字列へ変換する。
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrWrongIssuer):
		return "wrong_issuer"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrMalformedClaims):
		return "malformed_claims"
	default:
		return "invalid"
	}
}

// Generate はユーザーIDをサブジェクトとするHS256署名のJWTトークンを発行する。
// userサービスがログイン成功時に呼び出す。
func Generate(secret, issuer, audience string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Expiry は署名検証を行わずにトークンの有効期限クレームを読み取る。
// 失効リストへ登録する際のエントリ寿命として使う。
func Expiry(raw string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrMalformedClaims
	}
	return claims.ExpiresAt.Time, nil
}

// Validator はベアラートークンを検証し、認証済みユーザーIDを導出する。
type Validator struct {
	// secret はHS256署名の検証鍵。
	secret []byte
	// issuer は期待する発行者クレーム値。
	issuer string
	// audience は期待する対象クレーム値。
	audience string
	// store は失効リスト。nilの場合は失効チェックを行わない
	// （失効リストを持たない内部サービスの再検証用）。
	store revocation.Store
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// NewValidator はトークン検証器を生成する。
func NewValidator(secret, issuer, audience string, store revocation.Store) *Validator {
	return &Validator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		store:    store,
		now:      time.Now,
	}
}

// Validate はトークンを検証し、サブジェクトクレームのユーザーIDを返す。
// 有効期限は猶予なし（現在時刻が期限より厳密に前であること）で判定する。
func (v *Validator) Validate(raw string) (uuid.UUID, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return uuid.Nil, classifyParseError(err)
	}

	if v.store != nil {
		revoked, err := v.store.IsRevoked(revocation.Key(raw))
		if err != nil {
			// 失効状態が不明な場合は安全側に倒して失効扱いにする
			return uuid.Nil, fmt.Errorf("%w: 失効リストの参照に失敗: %w", ErrRevoked, err)
		}
		if revoked {
			return uuid.Nil, ErrRevoked
		}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: サブジェクトがUUIDでない: %w", ErrMalformedClaims, err)
	}
	return userID, nil
}

// classifyParseError はjwtライブラリのエラーを検証段階順の種別エラーへ変換する。
// ライブラリは複数のクレームエラーを結合して返すため、検査順
// （構文→署名→発行者/対象→有効期限）で優先度を付ける。
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrWrongIssuer, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedClaims, err)
	}
}
