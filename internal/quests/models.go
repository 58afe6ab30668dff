package quests

import (
	"time"

	"github.com/lib/pq"
)

type ObjectiveType string

const (
	ObjectiveTravel        ObjectiveType = "travel"
	ObjectiveVisitLocation ObjectiveType = "visit_location"
	ObjectiveObtainItem    ObjectiveType = "obtain_item"
	ObjectiveSellItem      ObjectiveType = "sell_item"
	ObjectiveDeliverItem   ObjectiveType = "deliver_item"
	ObjectiveEarnMoney     ObjectiveType = "earn_money"
)

func (t ObjectiveType) Valid() bool {
	switch t {
	case ObjectiveTravel, ObjectiveVisitLocation, ObjectiveObtainItem,
		ObjectiveSellItem, ObjectiveDeliverItem, ObjectiveEarnMoney:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Unlimited marks a quest that can be completed any number of times.
const Unlimited = -1

type Quest struct {
	ID                 int64     `db:"quest_id" json:"quest_id"`
	Title              string    `db:"title" json:"title"`
	Description        string    `db:"description" json:"description"`
	StartLocation      int64     `db:"start_location" json:"start_location"`
	RewardMoney        int       `db:"reward_money" json:"reward_money"`
	RewardExperience   int       `db:"reward_experience" json:"reward_experience"`
	RequiredLevel      int       `db:"required_level" json:"required_level"`
	MaxCompletions     int       `db:"max_completions" json:"max_completions"`
	CurrentCompletions int       `db:"current_completions" json:"current_completions"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedBy          *int64    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Exhausted reports whether the quest has hit its completion cap.
func (q Quest) Exhausted() bool {
	return q.MaxCompletions != Unlimited && q.CurrentCompletions >= q.MaxCompletions
}

type Objective struct {
	ID               int64         `db:"objective_id" json:"objective_id"`
	QuestID          int64         `db:"quest_id" json:"quest_id"`
	Order            int           `db:"objective_order" json:"objective_order"`
	Type             ObjectiveType `db:"objective_type" json:"objective_type"`
	TargetLocationID *int64        `db:"target_location_id" json:"target_location_id,omitempty"`
	TargetItem       *string       `db:"target_item" json:"target_item,omitempty"`
	TargetQuantity   int           `db:"target_quantity" json:"target_quantity"`
	TargetAmount     int64         `db:"target_amount" json:"target_amount"`
	Description      string        `db:"description" json:"description"`
}

func (o Objective) Item() string {
	if o.TargetItem == nil {
		return ""
	}
	return *o.TargetItem
}

func (o Objective) at(location *int64) bool {
	return o.TargetLocationID != nil && location != nil && *o.TargetLocationID == *location
}

type Progress struct {
	QuestID            int64         `db:"quest_id" json:"quest_id"`
	UserID             int64         `db:"user_id" json:"user_id"`
	CurrentObjective   int           `db:"current_objective" json:"current_objective"`
	Completed          pq.Int64Array `db:"objectives_completed" json:"objectives_completed"`
	Status             Status        `db:"quest_status" json:"quest_status"`
	StartedAt          time.Time     `db:"started_at" json:"started_at"`
	ObjectiveStartedAt time.Time     `db:"objective_started_at" json:"objective_started_at"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

func (p Progress) Done(order int) bool {
	for _, o := range p.Completed {
		if int(o) == order {
			return true
		}
	}
	return false
}

// Snapshot is the character state an objective is judged against.
type Snapshot struct {
	Location  *int64
	Money     int64
	ItemCount int
	Sold      int
}

// Met reports whether obj is satisfied by snap.
func Met(obj Objective, snap Snapshot) bool {
	switch obj.Type {
	case ObjectiveTravel, ObjectiveVisitLocation:
		return obj.at(snap.Location)
	case ObjectiveObtainItem:
		return snap.ItemCount >= obj.TargetQuantity
	case ObjectiveEarnMoney:
		return snap.Money >= obj.TargetAmount
	case ObjectiveDeliverItem:
		return obj.at(snap.Location) && snap.ItemCount >= obj.TargetQuantity
	case ObjectiveSellItem:
		return snap.Sold >= obj.TargetQuantity
	}
	return false
}

// Delivery is inventory handed over when an objective completes.
type Delivery struct {
	Item     string
	Quantity int
}

// Step records one completed objective. Final steps also pay the quest out.
type Step struct {
	QuestID  int64
	UserID   int64
	Order    int
	Final    bool
	Deliver  *Delivery
	Money    int
	Exp      int
	Finished time.Time
}

type StepResult struct {
	NewLevel int
	Minutes  int
}

type ObjectiveStatus struct {
	Objective
	Completed bool `json:"completed"`
	Current   bool `json:"current"`
}

type StatusView struct {
	Quest      Quest             `json:"quest"`
	Progress   Progress          `json:"progress"`
	Objectives []ObjectiveStatus `json:"objectives"`
}

type TickResult struct {
	Checked   int `json:"checked"`
	Advanced  int `json:"advanced"`
	Completed int `json:"completed"`
}

type ObjectiveSpec struct {
	Type             ObjectiveType `json:"objective_type"`
	TargetLocationID *int64        `json:"target_location_id,omitempty"`
	TargetItem       string        `json:"target_item,omitempty"`
	TargetQuantity   int           `json:"target_quantity,omitempty"`
	TargetAmount     int64         `json:"target_amount,omitempty"`
	Description      string        `json:"description,omitempty"`
}

type CreateRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	StartLocation    int64           `json:"start_location"`
	RewardMoney      int             `json:"reward_money"`
	RewardExperience int             `json:"reward_experience"`
	RequiredLevel    int             `json:"required_level"`
	MaxCompletions   *int            `json:"max_completions,omitempty"`
	CreatedBy        *int64          `json:"created_by,omitempty"`
	Objectives       []ObjectiveSpec `json:"objectives"`
}
