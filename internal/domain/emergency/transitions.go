package emergency

var callTransitions = map[string][]string{
	StatusPending:    {StatusDispatched, StatusResolved},
	StatusDispatched: {StatusResolved},
}

// A driver's job moves forward one step at a time.
var driverTransitions = map[string][]string{
	"":             {DriverAssigned},
	DriverAssigned: {DriverEnRoute},
	DriverEnRoute:  {DriverArrived},
	DriverArrived:  {DriverCompleted},
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionCall(from, to string) bool {
	return canTransition(callTransitions, from, to)
}

func CanTransitionDriver(from, to string) bool {
	return canTransition(driverTransitions, from, to)
}

func ValidDriverStatus(s string) bool {
	switch s {
	case DriverAssigned, DriverEnRoute, DriverArrived, DriverCompleted:
		return true
	}
	return false
}
