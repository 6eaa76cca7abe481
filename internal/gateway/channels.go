package gateway

import (
	"encoding/json"
	"strings"

	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/filter"
)

// FamilySpec declares everything the gateway knows about one channel
// family: how a subscription pattern is built from the client's
// target, which filter guards delivery, how results are projected,
// and whether clients may publish into the family themselves.
// Adding a family is one table entry, not new plumbing.
type FamilySpec struct {
	Name string

	// ClientPublish allows connection-originated publishes (typing
	// beacons, presence). Families fed by backend services reject
	// client publishes.
	ClientPublish bool

	// TargetRequired rejects subscribe commands without a target.
	TargetRequired bool

	buildPattern   func(target string, p domain.Principal) string
	buildPredicate func(policy domain.AuthorizationPolicy, target string) domain.FilterPredicate
	buildMapper    func(target string) domain.ResultMapper
}

// Pattern builds the registry pattern for a subscribe command.
func (f *FamilySpec) Pattern(target string, p domain.Principal) string {
	return f.buildPattern(target, p)
}

// Predicate builds the delivery filter for a subscribe command.
func (f *FamilySpec) Predicate(policy domain.AuthorizationPolicy, target string) domain.FilterPredicate {
	if f.buildPredicate == nil {
		return nil
	}
	return f.buildPredicate(policy, target)
}

// Mapper builds the result projection for a subscribe command.
func (f *FamilySpec) Mapper(target string) domain.ResultMapper {
	if f.buildMapper == nil {
		return nil
	}
	return f.buildMapper(target)
}

func exactPattern(family string) func(string, domain.Principal) string {
	return func(target string, _ domain.Principal) string {
		return family + "." + target
	}
}

// conversationPredicate guards conversation-scoped families: the
// subscriber must be authenticated, a member of the conversation, and
// is never notified of their own actions.
func conversationPredicate(policy domain.AuthorizationPolicy, conversationID string) domain.FilterPredicate {
	return filter.All(
		filter.Authenticated(),
		filter.ExcludeSelfOrigin(),
		filter.ConversationMember(policy, conversationID),
	)
}

// userPredicate guards user-scoped families (presence, activity,
// friend status).
func userPredicate(policy domain.AuthorizationPolicy, userID string) domain.FilterPredicate {
	return filter.All(
		filter.Authenticated(),
		filter.ExcludeSelfOrigin(),
		filter.UserVisible(policy, userID),
	)
}

// contactsChannel builds the exact channel a user's presence lands on
// for contact feeds: "contacts.<userId>.presence".
func contactsChannel(userID string) string {
	return constants.FamilyContacts + "." + userID + constants.ContactsChannelSuffix
}

// contactsSubject extracts the user id from a contacts channel name.
// Returns "" for anything that is not "contacts.<userId>.presence".
func contactsSubject(channel string) string {
	rest, ok := strings.CutPrefix(channel, constants.FamilyContacts+".")
	if !ok {
		return ""
	}
	subject, ok := strings.CutSuffix(rest, constants.ContactsChannelSuffix)
	if !ok || subject == "" {
		return ""
	}
	return subject
}

// contactsPredicate guards the aggregated contacts-presence feed. The
// observed user is not fixed at subscribe time, so visibility is
// checked per event against the channel's subject segment.
func contactsPredicate(policy domain.AuthorizationPolicy, _ string) domain.FilterPredicate {
	authenticated := filter.Authenticated()
	excludeSelf := filter.ExcludeSelfOrigin()
	return func(evt *domain.Event, requester domain.Principal) bool {
		if !authenticated(evt, requester) || !excludeSelf(evt, requester) {
			return false
		}
		subject := contactsSubject(evt.Channel)
		if subject == "" || subject == requester.UserID {
			return false
		}
		return policy.CanSeeUser(requester, subject)
	}
}

// contactsMapper wraps presence payloads with the subject user so
// clients of the aggregated feed know whose presence changed.
func contactsMapper(_ string) domain.ResultMapper {
	return func(evt *domain.Event) ([]byte, error) {
		return json.Marshal(struct {
			User    string          `json:"user"`
			Payload json.RawMessage `json:"payload"`
		}{
			User:    contactsSubject(evt.Channel),
			Payload: evt.Payload,
		})
	}
}

// familyTable is the channel registration table. Subscribe and publish
// commands are resolved against it; unknown families are protocol
// errors.
var familyTable = map[string]*FamilySpec{
	constants.FamilyMessageReceived: {
		Name:           constants.FamilyMessageReceived,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyMessageReceived),
		buildPredicate: conversationPredicate,
	},
	constants.FamilyTypingStatus: {
		Name:           constants.FamilyTypingStatus,
		ClientPublish:  true,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyTypingStatus),
		buildPredicate: conversationPredicate,
	},
	constants.FamilyMessageStatus: {
		Name:           constants.FamilyMessageStatus,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyMessageStatus),
		buildPredicate: conversationPredicate,
	},
	constants.FamilyParticipantChanged: {
		Name:           constants.FamilyParticipantChanged,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyParticipantChanged),
		buildPredicate: func(policy domain.AuthorizationPolicy, conversationID string) domain.FilterPredicate {
			// Membership changes must reach the actor too, so the
			// self-origin exclusion does not apply here
			return filter.All(
				filter.Authenticated(),
				filter.ConversationMember(policy, conversationID),
			)
		},
	},
	constants.FamilyPresence: {
		Name:           constants.FamilyPresence,
		ClientPublish:  true,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyPresence),
		buildPredicate: userPredicate,
	},
	constants.FamilyActivity: {
		Name:           constants.FamilyActivity,
		ClientPublish:  true,
		TargetRequired: true,
		buildPattern:   exactPattern(constants.FamilyActivity),
		buildPredicate: userPredicate,
	},
	constants.FamilyFriendStatus: {
		Name:           constants.FamilyFriendStatus,
		TargetRequired: false,
		buildPattern: func(target string, p domain.Principal) string {
			// Default to the subscriber's own feed
			if target == "" {
				target = p.UserID
			}
			return constants.FamilyFriendStatus + "." + target
		},
		buildPredicate: func(policy domain.AuthorizationPolicy, target string) domain.FilterPredicate {
			return filter.All(
				filter.Authenticated(),
				filter.ExcludeSelfOrigin(),
			)
		},
	},
	constants.FamilyContacts: {
		Name:           constants.FamilyContacts,
		TargetRequired: false,
		buildPattern: func(target string, _ domain.Principal) string {
			// One contact's channel when a target is named, otherwise
			// the aggregated feed; the predicate narrows it to
			// visible contacts
			if target != "" {
				return contactsChannel(target)
			}
			return constants.FamilyContacts + ".*"
		},
		buildPredicate: contactsPredicate,
		buildMapper:    contactsMapper,
	},
}

// ResolveFamily looks a family up in the registration table.
func ResolveFamily(name string) (*FamilySpec, error) {
	spec, ok := familyTable[name]
	if !ok {
		return nil, apperrors.ChannelError(name, "unknown channel family")
	}
	return spec, nil
}

// PublishChannels returns the exact broker channels a publish into the
// family targets. Friend-status events fan out to the fixed pair of
// per-user feeds, presence transitions also land on the user's
// contacts channel, and every other family publishes to one channel.
func PublishChannels(family, origin, target string) ([]string, error) {
	spec, err := ResolveFamily(family)
	if err != nil {
		return nil, err
	}

	if family == constants.FamilyFriendStatus {
		if origin == "" || target == "" {
			return nil, apperrors.ChannelError(family, "friend status requires both sides")
		}
		return []string{
			constants.FamilyFriendStatus + "." + origin,
			constants.FamilyFriendStatus + "." + target,
		}, nil
	}

	if target == "" {
		return nil, apperrors.ChannelError(spec.Name, "missing target")
	}

	switch family {
	case constants.FamilyContacts:
		return []string{contactsChannel(target)}, nil
	case constants.FamilyPresence:
		return []string{
			constants.FamilyPresence + "." + target,
			contactsChannel(target),
		}, nil
	}
	return []string{spec.Name + "." + target}, nil
}

// ValidateChannelName rejects malformed channel or target strings
// before they reach the registry or broker.
func ValidateChannelName(name string) error {
	if name == "" {
		return apperrors.ChannelError(name, "empty channel")
	}
	if len(name) > constants.MaxChannelLength {
		return apperrors.ChannelError(name, "channel too long")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return apperrors.ChannelError(name, "channel contains whitespace")
	}
	return nil
}
