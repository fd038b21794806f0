package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// Audit actions.
const (
	ActionSignup        = "account.signup"
	ActionSignupFailed  = "account.signup_failed"
	ActionSignin        = "account.signin"
	ActionSigninFailed  = "account.signin_failed"
	ActionSignout       = "account.signout"
	ActionDeleteProfile = "account.delete_profile"
	ActionUploadAvatar  = "profile.upload_avatar"
	ActionDeleteAvatar  = "profile.delete_avatar"
	ActionCreateGroup   = "group.create"
	ActionDeleteGroup   = "group.delete"
	ActionJoinRoom      = "chat.join_room"
	ActionLeaveRoom     = "chat.leave_room"
	ActionSendMessage   = "chat.send_message"
	ActionDisconnect    = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// entry starts an info-level audit event on the context logger.
func entry(ctx context.Context, action, username string) *zerolog.Event {
	l := log.Ctx(ctx)
	return l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username)
}

// Log records action by username.
func Log(ctx context.Context, action, username, msg string) {
	entry(ctx, action, username).Msg(msg)
}

// LogWithTarget records action by username on the object target.
func LogWithTarget(ctx context.Context, action, username, target, msg string) {
	entry(ctx, action, username).Str(FieldTargetID, target).Msg(msg)
}

// LogWithDetail records action by username with free-form detail.
func LogWithDetail(ctx context.Context, action, username, detail, msg string) {
	entry(ctx, action, username).Str(FieldDetail, detail).Msg(msg)
}
