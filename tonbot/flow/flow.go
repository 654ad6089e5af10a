// Package flow is the send-transaction conversation as an explicit state
// machine. Machine.Step is pure: it takes the current state and one chat
// event and returns the next state, the replies to send and, on
// confirmation, the draft to execute.
package flow

import (
	"fmt"
	"time"

	"github.com/m3rciful/tonbot/tonbot/address"
)

// Step names a position in the conversation.
type Step string

const (
	StepChooseAsset       Step = "choose_asset"
	StepContractAddress   Step = "contract_address"
	StepWithdrawalAddress Step = "withdrawal_address"
	StepAmount            Step = "amount"
	StepConfirm           Step = "confirm"

	StepSubmitted Step = "submitted"
	StepCancelled Step = "cancelled"
	StepHalted    Step = "halted"
	StepExpired   Step = "expired"
)

// Terminal reports whether the conversation is over at this step.
func (s Step) Terminal() bool {
	switch s {
	case StepSubmitted, StepCancelled, StepHalted, StepExpired:
		return true
	}
	return false
}

// AssetKind selects what is being sent.
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetJetton AssetKind = "jetton"
)

// Callback keys of the inline buttons this flow sends.
const (
	CallbackAsset   = "asset"
	CallbackConfirm = "confirm"
)

// Draft accumulates the user's answers.
type Draft struct {
	AssetKind         AssetKind
	ContractAddress   string
	WithdrawalAddress string
	WithdrawalAmount  string
	Confirmed         bool
}

// State is the resumable position of one chat's conversation.
type State struct {
	Step     Step
	Draft    Draft
	Deadline time.Time
}

// Event is an input delivered to the machine.
type Event interface{ event() }

// Callback is an inline button press.
type Callback struct {
	Key  string
	Data string
}

// Text is a plain text message.
type Text struct {
	Text string
}

// Expire is fed by the sweeper once the deadline has passed.
type Expire struct{}

func (Callback) event() {}
func (Text) event()     {}
func (Expire) event()   {}

// Button is an inline button carrying a callback key and data.
type Button struct {
	Text string
	Key  string
	Data string
}

// Reply is a message to send, optionally with one row of buttons.
type Reply struct {
	Text    string
	Buttons []Button
}

// Result is the outcome of one transition.
// Handled is false when the event does not belong to the current step; the
// state is then unchanged and nothing is sent.
type Result struct {
	State   State
	Replies []Reply
	Execute *Draft
	Handled bool
}

// Machine holds the configuration the transitions depend on.
type Machine struct {
	Rules       address.Rules
	ZeroAddress string
	TTL         time.Duration
}

const (
	msgChooseAsset        = `Do you want to send "Native" or "Jetton"?`
	msgAskContract        = "Please input contract address"
	msgBadContract        = "Incorrect Address Type : Not a TON contract address : %s"
	msgGotContract        = "Received contract address: %s"
	msgAskWithdrawal      = "Please input withdrawal address"
	msgBadWithdrawal      = "Incorrect Address Type : Not a TON address : %s"
	msgGotWithdrawal      = "Input withdrawal address: %s"
	msgAskAmount          = "Please input withdrawal amount"
	msgGotAmount          = "Input withdrawal amount: %s"
	msgSummary            = "Transaction details: \nContract Address: %s\nWithdrawal Address: %s\nWithdrawal Amount: %s \n Is it okay to execute a withdraw transaction?"
	msgCancelled          = "cancel transaction"
	msgExpired            = "Transaction was not completed in time. Send /send_tx to start again"
	confirmYes, confirmNo = "true", "false"
)

// Start opens a new conversation.
func (m Machine) Start(now time.Time) Result {
	st := State{Step: StepChooseAsset}
	if m.TTL > 0 {
		st.Deadline = now.Add(m.TTL)
	}
	return Result{
		State: st,
		Replies: []Reply{{
			Text: msgChooseAsset,
			Buttons: []Button{
				{Text: "Native", Key: CallbackAsset, Data: string(AssetNative)},
				{Text: "Jetton", Key: CallbackAsset, Data: string(AssetJetton)},
			},
		}},
		Handled: true,
	}
}

// Step applies ev to st.
func (m Machine) Step(st State, ev Event) Result {
	if st.Step.Terminal() {
		return ignored(st)
	}
	if _, ok := ev.(Expire); ok {
		st.Step = StepExpired
		return handled(st, Reply{Text: msgExpired})
	}

	switch st.Step {
	case StepChooseAsset:
		cb, ok := ev.(Callback)
		if !ok || cb.Key != CallbackAsset {
			return ignored(st)
		}
		st.Draft.ContractAddress = m.ZeroAddress
		switch AssetKind(cb.Data) {
		case AssetNative:
			st.Draft.AssetKind = AssetNative
			st.Step = StepWithdrawalAddress
			return handled(st, Reply{Text: msgAskWithdrawal})
		case AssetJetton:
			st.Draft.AssetKind = AssetJetton
			st.Step = StepContractAddress
			return handled(st, Reply{Text: msgAskContract})
		}
		return ignored(st)

	case StepContractAddress:
		txt, ok := ev.(Text)
		if !ok {
			return ignored(st)
		}
		if !m.Rules.Valid(txt.Text) {
			st.Step = StepHalted
			return handled(st, Reply{Text: fmt.Sprintf(msgBadContract, txt.Text)})
		}
		st.Draft.ContractAddress = txt.Text
		st.Step = StepWithdrawalAddress
		return handled(st,
			Reply{Text: fmt.Sprintf(msgGotContract, txt.Text)},
			Reply{Text: msgAskWithdrawal},
		)

	case StepWithdrawalAddress:
		txt, ok := ev.(Text)
		if !ok {
			return ignored(st)
		}
		if !m.Rules.Valid(txt.Text) {
			st.Step = StepHalted
			return handled(st, Reply{Text: fmt.Sprintf(msgBadWithdrawal, txt.Text)})
		}
		st.Draft.WithdrawalAddress = txt.Text
		st.Step = StepAmount
		return handled(st,
			Reply{Text: fmt.Sprintf(msgGotWithdrawal, txt.Text)},
			Reply{Text: msgAskAmount},
		)

	case StepAmount:
		txt, ok := ev.(Text)
		if !ok {
			return ignored(st)
		}
		st.Draft.WithdrawalAmount = txt.Text
		st.Step = StepConfirm
		return handled(st,
			Reply{Text: fmt.Sprintf(msgGotAmount, txt.Text)},
			Reply{
				Text: fmt.Sprintf(msgSummary, st.Draft.ContractAddress, st.Draft.WithdrawalAddress, st.Draft.WithdrawalAmount),
				Buttons: []Button{
					{Text: "OK", Key: CallbackConfirm, Data: confirmYes},
					{Text: "Cancel", Key: CallbackConfirm, Data: confirmNo},
				},
			},
		)

	case StepConfirm:
		cb, ok := ev.(Callback)
		if !ok || cb.Key != CallbackConfirm {
			return ignored(st)
		}
		if cb.Data == confirmNo {
			st.Step = StepCancelled
			return handled(st, Reply{Text: msgCancelled})
		}
		st.Draft.Confirmed = true
		st.Step = StepSubmitted
		draft := st.Draft
		res := handled(st)
		res.Execute = &draft
		return res
	}
	return ignored(st)
}

// Expired reports whether the conversation has outlived its deadline.
func (st State) Expired(now time.Time) bool {
	return !st.Deadline.IsZero() && now.After(st.Deadline)
}

func handled(st State, replies ...Reply) Result {
	return Result{State: st, Replies: replies, Handled: true}
}

func ignored(st State) Result {
	return Result{State: st}
}
