package paxos

import (
	"sync"
)

// AcceptorState is a consistent snapshot of the three acceptor fields.
type AcceptorState struct {
	HighestSeen     ProposalNum
	HighestAccepted ProposalNum
	AcceptedValue   string
}

// HasAccepted reports whether this acceptor ever accepted a value.
func (s AcceptorState) HasAccepted() bool {
	return !s.HighestAccepted.IsZero()
}

// AcceptorLogic handles PREPARE_REQUEST and ACCEPT_REQUEST for one
// member. Both handlers return the response to emit back to the
// sender and whether a response should be sent at all.
type AcceptorLogic interface {
	HandlePrepare(msg Message) (Message, bool)
	HandleAccept(msg Message) (Message, bool)

	GetState() AcceptorState

	// CheckInvariant for testing only
	CheckInvariant()
}

type acceptorLogicImpl struct {
	memberID MemberID
	logger   EventLogger

	mut             sync.Mutex
	highestSeen     ProposalNum
	highestAccepted ProposalNum
	acceptedValue   string
}

func NewAcceptorLogic(memberID MemberID, logger EventLogger) AcceptorLogic {
	return &acceptorLogicImpl{
		memberID: memberID,
		logger:   logger,
	}
}

// HandlePrepare promises only proposal numbers strictly greater than
// highestSeen. Equal numbers are ignored.
func (s *acceptorLogicImpl) HandlePrepare(msg Message) (Message, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	num := msg.ProposalNumber
	if num <= s.highestSeen {
		s.logger.Printf("Phase 1 : Acceptor %s ignores PREPARE from %s with proposal number %d",
			s.memberID, msg.SenderID, num)
		return Message{}, false
	}

	s.highestSeen = num

	s.logger.Printf("Phase 1 : Acceptor %s received PREPARE from %s with proposal number %d",
		s.memberID, msg.SenderID, num)
	s.logger.Printf("Phase 1 : Acceptor %s sends PROMISE to %s", s.memberID, msg.SenderID)

	return Message{
		Type:           TypePromise,
		ProposalNumber: num,
		ProposerID:     msg.ProposerID,

		LastAcceptedProposalNumber: s.highestAccepted,
		LastAcceptedValue:          s.acceptedValue,
	}, true
}

// HandleAccept accepts proposal numbers greater than OR EQUAL to
// highestSeen. The non-strict comparison is required: the proposer's
// own prepare already bumped highestSeen to this number.
func (s *acceptorLogicImpl) HandleAccept(msg Message) (Message, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()

	num := msg.ProposalNumber
	if num < s.highestSeen {
		s.logger.Printf("Phase 3 : Acceptor %s rejects ACCEPT_REQUEST from %s",
			s.memberID, msg.SenderID)
		return Message{}, false
	}

	s.highestSeen = num
	s.highestAccepted = num
	s.acceptedValue = msg.Value

	s.logger.Printf("Phase 3 : Acceptor %s accepts value '%s' from proposer %s",
		s.memberID, s.acceptedValue, msg.ProposerID)
	s.logger.Printf("Phase 3 : Acceptor %s sends ACCEPTED to %s", s.memberID, msg.SenderID)

	return Message{
		Type:           TypeAccepted,
		ProposalNumber: num,
		ProposerID:     msg.ProposerID,
		Value:          s.acceptedValue,
	}, true
}

func (s *acceptorLogicImpl) GetState() AcceptorState {
	s.mut.Lock()
	defer s.mut.Unlock()
	return AcceptorState{
		HighestSeen:     s.highestSeen,
		HighestAccepted: s.highestAccepted,
		AcceptedValue:   s.acceptedValue,
	}
}

func (s *acceptorLogicImpl) CheckInvariant() {
	s.mut.Lock()
	defer s.mut.Unlock()
	AssertTrue(s.highestAccepted <= s.highestSeen)
	if s.acceptedValue != "" {
		AssertTrue(s.highestAccepted > 0)
	}
}
