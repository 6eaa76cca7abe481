package filter

import "github.com/chatwire/gateway/internal/domain"

// Stock predicates composed by the channel registration table.

// Authenticated passes only for connections with a resolved identity.
// The synthetic per-session identity dev mode assigns to anonymous
// connections counts; only principals with no user id at all are
// denied.
func Authenticated() domain.FilterPredicate {
	return func(evt *domain.Event, requester domain.Principal) bool {
		return requester.Authenticated()
	}
}

// ExcludeSelfOrigin suppresses events the requester originated, so
// users are not notified of their own actions. Events without a known
// origin pass through.
func ExcludeSelfOrigin() domain.FilterPredicate {
	return func(evt *domain.Event, requester domain.Principal) bool {
		if evt.Origin == "" {
			return true
		}
		return evt.Origin != requester.UserID
	}
}

// ConversationMember gates delivery on conversation membership. The
// decision is delegated to the authorization policy collaborator.
func ConversationMember(policy domain.AuthorizationPolicy, conversationID string) domain.FilterPredicate {
	return func(evt *domain.Event, requester domain.Principal) bool {
		return policy.CanAccessConversation(requester, conversationID)
	}
}

// UserVisible gates delivery on whether the requester may observe the
// target user (presence, activity, friend status).
func UserVisible(policy domain.AuthorizationPolicy, userID string) domain.FilterPredicate {
	return func(evt *domain.Event, requester domain.Principal) bool {
		return policy.CanSeeUser(requester, userID)
	}
}

// All combines predicates conjunctively. Evaluation short-circuits on
// the first predicate that denies.
func All(predicates ...domain.FilterPredicate) domain.FilterPredicate {
	return func(evt *domain.Event, requester domain.Principal) bool {
		for _, p := range predicates {
			if p == nil {
				continue
			}
			if !p(evt, requester) {
				return false
			}
		}
		return true
	}
}

// AllowAllPolicy is the default authorization policy. Membership
// checks are pending on the upstream services, so every question is
// answered yes; a real policy can be injected through the builder.
type AllowAllPolicy struct{}

func (AllowAllPolicy) CanAccessConversation(p domain.Principal, conversationID string) bool {
	return true
}

func (AllowAllPolicy) CanSeeUser(p domain.Principal, userID string) bool {
	return true
}
