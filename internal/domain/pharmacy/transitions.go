package pharmacy

var orderTransitions = map[string][]string{
	StatusPending:  {StatusAssigned},
	StatusAssigned: {StatusDelivered},
}

// Deliveries move forward one step at a time.
var deliveryTransitions = map[string][]string{
	"":                     {DeliveryAssigned},
	DeliveryAssigned:       {DeliveryPickedUp},
	DeliveryPickedUp:       {DeliveryOutForDelivery},
	DeliveryOutForDelivery: {DeliveryDelivered},
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionOrder(from, to string) bool {
	return canTransition(orderTransitions, from, to)
}

func CanTransitionDelivery(from, to string) bool {
	return canTransition(deliveryTransitions, from, to)
}

func ValidDeliveryStatus(s string) bool {
	switch s {
	case DeliveryAssigned, DeliveryPickedUp, DeliveryOutForDelivery, DeliveryDelivered:
		return true
	}
	return false
}

func ValidOrderStatus(s string) bool {
	switch s {
	case StatusPending, StatusAssigned, StatusDelivered:
		return true
	}
	return false
}
