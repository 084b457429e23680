/*
The sync package applies the difference between a local folder and a remote
folder under one of three policies:

1) Merge -- Files missing on one side are copied over from the other. Files
   that differ are overwritten by the more recently modified copy, and the
   older copy is moved to the trash first. Nothing is ever deleted.
2) PushMirror -- The remote folder is made an exact copy of the local folder.
   Remote files that don't exist locally are moved to the remote trash.
3) PullMirror -- The reverse of PushMirror, trashing into the local trash.

Every sync starts with a preview: both folders are indexed and diffed without
touching either of them. Applying the preview requires explicit confirmation.

Each file operation is attempted independently. A failed operation is recorded
in the SyncReport, and the rest of the plan is still applied. Trash is never
purged.
*/
package sync
