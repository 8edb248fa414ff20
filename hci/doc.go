// Package hci is the single point of contact with the local controller: it
// frames HCI commands and correlates them with their Command-Complete or
// Command-Status events, demultiplexes connection-lifecycle and LE
// meta-events to registered listeners, and maintains the handle->Conn
// registry. ACL data packets are not handled here: ATT and SMP traffic runs
// over dedicated kernel L2CAP sockets (the l2cap package).
package hci
